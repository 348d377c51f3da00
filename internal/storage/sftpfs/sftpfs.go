package sftpfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	gssh "github.com/elyra-ai/kfp-notebook/internal/ssh"
	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

// Backend stores objects on an SFTP server under <url path>/<bucket>/<key>.
// The SSH session is opened on first use and kept until Close.
type Backend struct {
	client *gssh.Client
	root   string
	bucket string

	mu   sync.Mutex
	conn *xssh.Client
	sf   *sftp.Client
}

// New prepares an sftp://user@host[:port]/root endpoint. The key and known_hosts files are
// read here; the connection is made lazily.
func New(cfg storage.Config) (storage.Backend, error) {
	u, err := storage.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" || strings.Contains(bucket, "/") {
		return nil, fmt.Errorf("invalid bucket name %q", cfg.Bucket)
	}
	user := u.User.Username()
	if user == "" {
		user = cfg.AccessKey
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":22"
	}
	signer, err := gssh.LoadPrivateKeySigner(cfg.SFTP.KeyPath)
	if err != nil {
		return nil, err
	}
	kh, err := gssh.LoadKnownHostsCallback(cfg.SFTP.KnownHosts)
	if err != nil {
		return nil, err
	}
	root := u.Path
	if root == "" {
		root = "."
	}
	return &Backend{
		client: &gssh.Client{Addr: addr, User: user, Signer: signer, KnownHosts: kh, Timeout: 30 * time.Second},
		root:   root,
		bucket: bucket,
	}, nil
}

func (b *Backend) Name() string { return "sftp" }

func (b *Backend) session(ctx context.Context) (*sftp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sf != nil {
		return b.sf, nil
	}
	conn, err := gssh.Dial(ctx, b.client)
	if err != nil {
		if errors.Is(err, gssh.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", storage.ErrAuth, err)
		}
		return nil, err
	}
	sf, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	b.conn, b.sf = conn, sf
	return sf, nil
}

func (b *Backend) bucketDir() string { return path.Join(b.root, b.bucket) }

func (b *Backend) checkBucket(sf *sftp.Client) error {
	st, err := sf.Stat(b.bucketDir())
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%s: %w", b.bucket, storage.ErrNoSuchBucket)
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, key, localPath string) (int64, error) {
	sf, err := b.session(ctx)
	if err != nil {
		return 0, err
	}
	if err := b.checkBucket(sf); err != nil {
		return 0, err
	}
	remote := path.Join(b.bucketDir(), key)
	if _, err := sf.Stat(remote); errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("get %s/%s: %w", b.bucket, key, storage.ErrNotFound)
	}
	return gssh.PullFile(sf, remote, localPath)
}

func (b *Backend) Put(ctx context.Context, key, localPath string) (int64, error) {
	if _, err := os.Stat(localPath); errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("put %s: %w", localPath, storage.ErrLocalFileMissing)
	}
	sf, err := b.session(ctx)
	if err != nil {
		return 0, err
	}
	if err := b.checkBucket(sf); err != nil {
		return 0, err
	}
	return gssh.PushFile(sf, localPath, path.Join(b.bucketDir(), key))
}

// Close ends the SFTP session if one was opened.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sf == nil {
		return nil
	}
	err := b.sf.Close()
	if cerr := b.conn.Close(); err == nil {
		err = cerr
	}
	b.sf, b.conn = nil, nil
	return err
}
