package service

import (
	"context"

	"freelancehub/internal/domain/entity"
)

//go:generate mockgen -source=attachment_uploader.go -destination=../../mocks/mock_attachment_uploader.go -package=mocks

// ProgressFunc receives a percentage in [0, 100] that never decreases.
type ProgressFunc func(percent int)

type AttachmentUploader interface {
	Upload(ctx context.Context, conversationID string, file *entity.AttachmentFile, progress ProgressFunc) (*entity.Attachment, error)
	Delete(ctx context.Context, path string) error
}
