package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound         = errors.New("object not found")
	ErrNoSuchBucket     = errors.New("bucket does not exist")
	ErrAuth             = errors.New("object storage authentication failed")
	ErrLocalFileMissing = errors.New("local file does not exist")
)

// Backend moves single files between the local filesystem and one bucket.
type Backend interface {
	Name() string
	// Fetch downloads key to localPath and returns the number of bytes written.
	Fetch(ctx context.Context, key, localPath string) (int64, error)
	// Put uploads localPath to key and returns the number of bytes sent.
	Put(ctx context.Context, key, localPath string) (int64, error)
}

// ObjectKey maps a local file name to its key under a directory prefix.
func ObjectKey(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
