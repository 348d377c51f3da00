package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

// objectAPI is the subset of *minio.Client the backend relies on.
type objectAPI interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Backend stores objects in an S3 compatible bucket.
type Backend struct {
	client objectAPI
	bucket string
}

// New connects to the endpoint in cfg. The connection is lazy: credentials are only checked
// on the first request.
func New(cfg storage.Config) (storage.Backend, error) {
	u, err := storage.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(u.Host, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    u.Scheme == "https",
		Region:    region,
		Transport: storage.NewTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Backend{client: client, bucket: bucket}, nil
}

func (b *Backend) Name() string { return "s3" }

func (b *Backend) Fetch(ctx context.Context, key, localPath string) (int64, error) {
	if err := b.client.FGetObject(ctx, b.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", b.bucket, key, mapError(err))
	}
	st, err := os.Stat(localPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", localPath, err)
	}
	return st.Size(), nil
}

func (b *Backend) Put(ctx context.Context, key, localPath string) (int64, error) {
	if _, err := os.Stat(localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("put %s: %w", localPath, storage.ErrLocalFileMissing)
		}
		return 0, fmt.Errorf("stat %s: %w", localPath, err)
	}
	info, err := b.client.FPutObject(ctx, b.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return 0, fmt.Errorf("put %s/%s: %w", b.bucket, key, mapError(err))
	}
	return info.Size, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// mapError translates S3 error codes into the storage sentinels while keeping the original error.
func mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	var kind error
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		kind = storage.ErrNotFound
	case "NoSuchBucket":
		kind = storage.ErrNoSuchBucket
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidToken", "ExpiredToken":
		kind = storage.ErrAuth
	default:
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
