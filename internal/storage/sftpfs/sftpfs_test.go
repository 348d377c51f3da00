package sftpfs

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

func newKey(t *testing.T) (ed25519.PrivateKey, xssh.Signer) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	signer, err := xssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return priv, signer
}

func writeKey(t *testing.T, dir string, priv ed25519.PrivateKey) string {
	t.Helper()
	block, err := xssh.MarshalPrivateKey(priv, "test")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("id_%x", priv.Public().(ed25519.PublicKey)[:4]))
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

// server is an in-process SSH server with the sftp subsystem, serving the local filesystem.
type server struct {
	addr       string
	knownHosts string
}

func startServer(t *testing.T, allowed xssh.PublicKey) *server {
	t.Helper()
	_, hostSigner := newKey(t)
	cfg := &xssh.ServerConfig{
		PublicKeyCallback: func(c xssh.ConnMetadata, key xssh.PublicKey) (*xssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), allowed.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("key rejected")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()

	kh := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{ln.Addr().String()}, hostSigner.PublicKey())
	if err := os.WriteFile(kh, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return &server{addr: ln.Addr().String(), knownHosts: kh}
}

func serveConn(conn net.Conn, cfg *xssh.ServerConfig) {
	sconn, chans, reqs, err := xssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer sconn.Close()
	go xssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(xssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *xssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)
		srv, err := sftp.NewServer(ch)
		if err != nil {
			_ = ch.Close()
			continue
		}
		go func() {
			_ = srv.Serve()
			_ = srv.Close()
		}()
	}
}

type fixture struct {
	srv     *server
	root    string
	keyPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	priv, signer := newKey(t)
	f := &fixture{
		srv:     startServer(t, signer.PublicKey()),
		root:    t.TempDir(),
		keyPath: writeKey(t, t.TempDir(), priv),
	}
	if err := os.MkdirAll(filepath.Join(f.root, "bucket"), 0o755); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) open(t *testing.T, bucket, keyPath string) storage.Backend {
	t.Helper()
	var cfg storage.Config
	cfg.Endpoint = fmt.Sprintf("sftp://tester@%s%s", f.srv.addr, filepath.ToSlash(f.root))
	cfg.Bucket = bucket
	cfg.SFTP.KeyPath = keyPath
	cfg.SFTP.KnownHosts = f.srv.knownHosts
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.(io.Closer).Close() })
	return b
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, "bucket", f.keyPath)
	ctx := context.Background()

	local := t.TempDir()
	src := filepath.Join(local, "model.pkl")
	if err := os.WriteFile(src, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := b.Put(ctx, "run-1/model.pkl", src)
	if err != nil || n != int64(len("weights")) {
		t.Fatalf("Put: n=%d err=%v", n, err)
	}
	if got, err := os.ReadFile(filepath.Join(f.root, "bucket", "run-1", "model.pkl")); err != nil || string(got) != "weights" {
		t.Fatalf("object on server: %q %v", got, err)
	}

	dst := filepath.Join(local, "fetched", "model.pkl")
	n, err = b.Fetch(ctx, "run-1/model.pkl", dst)
	if err != nil || n != int64(len("weights")) {
		t.Fatalf("Fetch: n=%d err=%v", n, err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "weights" {
		t.Fatalf("fetched %q", got)
	}
}

func TestFetchMissingObject(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, "bucket", f.keyPath)
	_, err := b.Fetch(context.Background(), "run-1/absent.txt", filepath.Join(t.TempDir(), "absent.txt"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMissingBucket(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, "nobucket", f.keyPath)
	src := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(src, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Put(context.Background(), "a.txt", src); !errors.Is(err, storage.ErrNoSuchBucket) {
		t.Fatalf("Put: expected ErrNoSuchBucket, got %v", err)
	}
	if _, err := b.Fetch(context.Background(), "a.txt", filepath.Join(t.TempDir(), "a.txt")); !errors.Is(err, storage.ErrNoSuchBucket) {
		t.Fatalf("Fetch: expected ErrNoSuchBucket, got %v", err)
	}
}

func TestPutMissingLocalFile(t *testing.T) {
	f := newFixture(t)
	b := f.open(t, "bucket", f.keyPath)
	_, err := b.Put(context.Background(), "a.txt", filepath.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, storage.ErrLocalFileMissing) {
		t.Fatalf("expected ErrLocalFileMissing, got %v", err)
	}
}

func TestRejectedKey(t *testing.T) {
	f := newFixture(t)
	other, _ := newKey(t)
	b := f.open(t, "bucket", writeKey(t, t.TempDir(), other))
	_, err := b.Fetch(context.Background(), "a.txt", filepath.Join(t.TempDir(), "a.txt"))
	if !errors.Is(err, storage.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}
