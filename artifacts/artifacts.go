// Package artifacts mirrors derived files to S3-compatible object storage.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jupark12/model-processor/config"
)

// Mirror copies a local file to remote storage under key
type Mirror interface {
	Put(ctx context.Context, localPath, key string) error
}

type nopMirror struct{}

func (nopMirror) Put(context.Context, string, string) error { return nil }

// Nop keeps files local only
var Nop Mirror = nopMirror{}

// MinioMirror uploads files to a single bucket
type MinioMirror struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioMirror connects to the endpoint and creates the bucket if missing
func NewMinioMirror(ctx context.Context, cfg config.MinioConfig, logger *slog.Logger) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created artifact bucket", "bucket", cfg.Bucket)
	}

	return &MinioMirror{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "artifacts", "bucket", cfg.Bucket),
	}, nil
}

func (m *MinioMirror) Put(ctx context.Context, localPath, key string) error {
	opts := minio.PutObjectOptions{ContentType: ContentType(localPath)}
	info, err := m.client.FPutObject(ctx, m.bucket, key, localPath, opts)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	m.logger.Debug("mirrored artifact", "key", key, "size", info.Size)
	return nil
}

// ContentType sniffs the file, falling back to application/octet-stream
func ContentType(localPath string) string {
	if filepath.Ext(localPath) == ".stl" {
		return "model/stl"
	}
	mt, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// Key builds the object key for a file in an upload subdirectory
func Key(dir, filename string) string {
	return path.Join(dir, filename)
}

