package ssh

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// PushFile uploads a local file to a remote path, creating remote parents.
func PushFile(sf *sftp.Client, localPath, remotePath string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open local: %w", err)
	}
	defer src.Close()
	if err := sf.MkdirAll(path.Dir(remotePath)); err != nil {
		return 0, fmt.Errorf("mkdir remote: %w", err)
	}
	dst, err := sf.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("create remote: %w", err)
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}

// PullFile downloads a remote file to a local path, creating local parents.
func PullFile(sf *sftp.Client, remotePath, localPath string) (int64, error) {
	src, err := sf.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("open remote: %w", err)
	}
	defer src.Close()
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("mkdir local: %w", err)
		}
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local: %w", err)
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}
