package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/service"
	"freelancehub/pkg/logger"
)

// CloudStorageClient stores attachments in a Cloud Storage bucket.
type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

var _ service.AttachmentUploader = (*CloudStorageClient)(nil)

func NewCloudStorageClient(ctx context.Context, bucketName, credentialsJSON, credentialsPath string) (*CloudStorageClient, error) {
	if bucketName == "" {
		return nil, errors.New("storage bucket is required")
	}

	var opts []option.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsPath != "":
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	storageClient := &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}

	if err := storageClient.setBucketCORS(ctx); err != nil {
		logger.Warn("Failed to set CORS configuration: %v", err)
	}

	return storageClient, nil
}

// setBucketCORS lets browsers fetch attachment URLs directly.
func (c *CloudStorageClient) setBucketCORS(ctx context.Context) error {
	bucket := c.client.Bucket(c.bucketName)

	bucketAttrs, err := bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket attributes: %v", err)
	}
	if len(bucketAttrs.CORS) > 0 {
		return nil
	}

	_, err = bucket.Update(ctx, storage.BucketAttrsToUpdate{
		CORS: []storage.CORS{{
			MaxAge:          3600,
			Methods:         []string{"GET", "HEAD"},
			Origins:         []string{"*"},
			ResponseHeaders: []string{"Content-Type"},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to update bucket CORS: %v", err)
	}
	return nil
}

func (c *CloudStorageClient) Upload(ctx context.Context, conversationID string, file *entity.AttachmentFile, progress service.ProgressFunc) (*entity.Attachment, error) {
	contentType, body, err := sniff(file.ContentType, file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", file.FileName, err)
	}
	path := objectPath(conversationID, file.FileName, contentType)
	counter := newProgressCounter(file.Size, progress)

	obj := c.client.Bucket(c.bucketName).Object(path)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "private, max-age=86400"
	wc.ContentDisposition = fmt.Sprintf("inline; filename=%q", file.FileName)
	wc.ProgressFunc = counter.set

	written, err := io.Copy(wc, body)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("failed to copy file to GCS: %v", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %v", err)
	}
	counter.complete()

	return &entity.Attachment{
		FileName: file.FileName,
		FileURL:  fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucketName, path),
		FileType: contentType,
		FileSize: written,
		Path:     path,
	}, nil
}

// Delete treats a missing object as already deleted.
func (c *CloudStorageClient) Delete(ctx context.Context, path string) error {
	err := c.client.Bucket(c.bucketName).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
