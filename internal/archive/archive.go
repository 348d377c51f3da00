// Package archive unpacks the gzip compressed tarballs that carry a node's dependencies.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafePath is returned for entries that would land outside the destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// ExtractFile unpacks the .tar.gz at path into dest and returns the names it wrote.
func ExtractFile(path, dest string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Extract(f, dest)
}

// Extract unpacks a gzip compressed tar stream into dest. Regular files, directories and
// symlinks pointing inside dest are supported; other entry types are skipped.
func Extract(r io.Reader, dest string) ([]string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	var names []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return names, fmt.Errorf("read tar: %w", err)
		}
		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return names, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return names, fmt.Errorf("mkdir %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return names, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			names = append(names, hdr.Name)
		case tar.TypeSymlink:
			linkTarget := hdr.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(target), linkTarget)
			}
			if _, err := safeJoin(root, mustRel(root, linkTarget)); err != nil {
				return names, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return names, err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return names, fmt.Errorf("symlink %s: %w", hdr.Name, err)
			}
			names = append(names, hdr.Name)
		}
	}
	return names, nil
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func mustRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
