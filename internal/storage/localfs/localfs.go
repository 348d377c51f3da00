package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

// Backend keeps objects in a directory tree: <root>/<bucket>/<key>. Buckets are
// plain directories and must exist before use.
type Backend struct {
	root   string
	bucket string
}

// New opens a file:// endpoint.
func New(cfg storage.Config) (storage.Backend, error) {
	u, err := storage.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	root := u.Path
	if root == "" {
		root = u.Opaque
	}
	if root == "" {
		return nil, fmt.Errorf("file endpoint %q has no path", cfg.Endpoint)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return nil, fmt.Errorf("invalid bucket name %q", cfg.Bucket)
	}
	return &Backend{root: root, bucket: bucket}, nil
}

func (b *Backend) Name() string { return "localfs" }

func (b *Backend) bucketDir() string { return filepath.Join(b.root, b.bucket) }

func (b *Backend) objectPath(key string) (string, error) {
	p := filepath.Join(b.bucketDir(), filepath.FromSlash(key))
	rel, err := filepath.Rel(b.bucketDir(), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes bucket", key)
	}
	return p, nil
}

func (b *Backend) checkBucket() error {
	st, err := os.Stat(b.bucketDir())
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%s: %w", b.bucket, storage.ErrNoSuchBucket)
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, key, localPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := b.checkBucket(); err != nil {
		return 0, err
	}
	src, err := b.objectPath(key)
	if err != nil {
		return 0, err
	}
	n, err := copyFile(src, localPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("get %s/%s: %w", b.bucket, key, storage.ErrNotFound)
	}
	return n, err
}

func (b *Backend) Put(ctx context.Context, key, localPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := os.Stat(localPath); errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("put %s: %w", localPath, storage.ErrLocalFileMissing)
	}
	if err := b.checkBucket(); err != nil {
		return 0, err
	}
	dst, err := b.objectPath(key)
	if err != nil {
		return 0, err
	}
	return copyFile(localPath, dst)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", src, err)
	}
	return n, nil
}
