package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/service"
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	PresignTTL time.Duration
}

// S3Client stores attachments in an S3 compatible bucket.
type S3Client struct {
	cfg     S3Config
	s3      *s3.Client
	presign *s3.PresignClient
}

var _ service.AttachmentUploader = (*S3Client)(nil)

const defaultPresignTTL = 7 * 24 * time.Hour

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		cfg:     cfg,
		s3:      s3Client,
		presign: s3.NewPresignClient(s3Client),
	}, nil
}

// Upload buffers the body so the SDK can rewind it for signing and retries.
func (c *S3Client) Upload(ctx context.Context, conversationID string, file *entity.AttachmentFile, progress service.ProgressFunc) (*entity.Attachment, error) {
	contentType, body, err := sniff(file.ContentType, file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", file.FileName, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", file.FileName, err)
	}

	key := objectPath(conversationID, file.FileName, contentType)
	counter := newProgressCounter(int64(len(data)), progress)

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(c.cfg.Bucket),
		Key:                aws.String(key),
		Body:               &progressReader{r: bytes.NewReader(data), counter: counter},
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", file.FileName)),
	})
	if err != nil {
		return nil, describeS3Error("put", key, err)
	}
	counter.complete()

	url, err := c.FileURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &entity.Attachment{
		FileName: file.FileName,
		FileURL:  url,
		FileType: contentType,
		FileSize: int64(len(data)),
		Path:     key,
	}, nil
}

func (c *S3Client) Delete(ctx context.Context, path string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return describeS3Error("delete", path, err)
	}
	return nil
}

// FileURL prefers the public base; private buckets get a presigned GET.
func (c *S3Client) FileURL(ctx context.Context, key string) (string, error) {
	if c.cfg.PublicBase != "" {
		return strings.TrimRight(c.cfg.PublicBase, "/") + "/" + key, nil
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = c.cfg.PresignTTL
	})
	if err != nil {
		return "", describeS3Error("presign", key, err)
	}
	return presigned.URL, nil
}

func describeS3Error(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("s3 %s %s: %s: %w", op, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("s3 %s %s: %w", op, key, err)
}
