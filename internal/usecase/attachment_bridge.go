package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/service"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentUploads = 4

// AttachmentProgressFunc reports per file upload progress.
type AttachmentProgressFunc func(fileName string, percent int)

type AttachmentFailure struct {
	FileName string
	Err      error
}

// UploadOutcome keeps the successful uploads in draft order.
type UploadOutcome struct {
	Uploaded []entity.Attachment
	Failed   []AttachmentFailure
}

// Err joins every failure, or returns nil when nothing failed.
func (o *UploadOutcome) Err() error {
	if len(o.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(o.Failed))
	for i, f := range o.Failed {
		errs[i] = fmt.Errorf("%s: %w", f.FileName, f.Err)
	}
	return stderrors.Join(errs...)
}

type AttachmentBridge struct {
	uploader service.AttachmentUploader
	maxBytes int64
}

func NewAttachmentBridge(uploader service.AttachmentUploader, maxBytes int64) *AttachmentBridge {
	return &AttachmentBridge{
		uploader: uploader,
		maxBytes: maxBytes,
	}
}

// UploadAll uploads files concurrently. A failed file never cancels its
// siblings.
func (b *AttachmentBridge) UploadAll(ctx context.Context, conversationID string, files []*entity.AttachmentFile, progress AttachmentProgressFunc) *UploadOutcome {
	results := make([]*entity.Attachment, len(files))
	failures := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(maxConcurrentUploads)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if b.maxBytes > 0 && file.Size > b.maxBytes {
				failures[i] = errors.AttachmentTooLarge(file.FileName, b.maxBytes)
				return nil
			}
			if b.uploader == nil {
				failures[i] = errors.Internal("Attachment storage is not configured", nil)
				return nil
			}

			attachment, err := b.uploader.Upload(ctx, conversationID, file, monotonicProgress(file.FileName, progress))
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = attachment
			return nil
		})
	}
	g.Wait()

	outcome := &UploadOutcome{}
	for i, file := range files {
		if failures[i] != nil {
			logger.L().Warn("attachment upload failed",
				zap.String("conversation_id", conversationID),
				zap.String("file_name", file.FileName),
				zap.Error(failures[i]))
			outcome.Failed = append(outcome.Failed, AttachmentFailure{FileName: file.FileName, Err: failures[i]})
			continue
		}
		outcome.Uploaded = append(outcome.Uploaded, *results[i])
	}
	return outcome
}

// Cleanup deletes uploaded objects by path. Failures are logged only.
func (b *AttachmentBridge) Cleanup(ctx context.Context, attachments []entity.Attachment) {
	if b.uploader == nil {
		return
	}
	for _, a := range attachments {
		if a.Path == "" {
			continue
		}
		if err := b.uploader.Delete(ctx, a.Path); err != nil {
			logger.Warn("Cleanup Error: failed to delete attachment %s: %v", a.Path, err)
		}
	}
}

func monotonicProgress(fileName string, progress AttachmentProgressFunc) service.ProgressFunc {
	if progress == nil {
		return func(int) {}
	}
	var mu sync.Mutex
	last := -1
	return func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		mu.Lock()
		defer mu.Unlock()
		if percent <= last {
			return
		}
		last = percent
		progress(fileName, percent)
	}
}
