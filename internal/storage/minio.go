package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/config"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AttachmentStore holds announcement attachments (flyers, bulletins,
// event images) in a single bucket. Objects are keyed by announcement id
// so deleting an announcement can clean up its attachment by key.
type AttachmentStore struct {
	client *minio.Client
	bucket string
}

func NewAttachmentStore(cfg config.MinIOConfig) (*AttachmentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &AttachmentStore{client: client, bucket: cfg.Bucket}, nil
}

// AttachmentKey builds the object key for an announcement's attachment.
// The original filename is kept so presigned downloads carry a sensible
// name; path separators are stripped to keep keys flat.
func AttachmentKey(announcementID uuid.UUID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("announcements/%s/%s", announcementID, base)
}

func (s *AttachmentStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("attachment_upload_failed", err, map[string]interface{}{
			"object_key": key,
			"size":       size,
			"bucket":     s.bucket,
		})
		return err
	}
	logger.Info("attachment_uploaded", map[string]interface{}{
		"object_key": key,
		"size":       size,
		"bucket":     s.bucket,
	})
	return nil
}

// DownloadURL returns a presigned GET URL for an attachment. The
// content-disposition response override makes browsers save the file
// under its original name.
func (s *AttachmentStore) DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	query := make(url.Values)
	if base := filepath.Base(key); base != "." && base != "/" {
		query.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", base))
	}

	urlValue, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, query)
	if err != nil {
		return "", err
	}
	return urlValue.String(), nil
}

func (s *AttachmentStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("attachment_delete_failed", err, map[string]interface{}{
			"object_key": key,
			"bucket":     s.bucket,
		})
		return err
	}
	logger.Info("attachment_deleted", map[string]interface{}{
		"object_key": key,
		"bucket":     s.bucket,
	})
	return nil
}

func (s *AttachmentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", s.bucket, err)
	}
	return nil
}
