package core

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

func mustWrite(tb testing.TB, name, body string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
}

func tarball(tb testing.TB, files map[string]string) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			tb.Fatalf("header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			tb.Fatalf("write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// chdir switches the working directory to dir for the rest of the test and
// restores it on cleanup (equivalent of testing.TB.Chdir for pre-1.24 toolchains).
func chdir(tb testing.TB, dir string) {
	tb.Helper()
	wd, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		tb.Fatalf("chdir %s: %v", dir, err)
	}
	tb.Cleanup(func() { _ = os.Chdir(wd) })
}
