package core

import (
	"context"
	"testing"

	"github.com/elyra-ai/kfp-notebook/internal/requirements"
	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

func BenchmarkSplitList(b *testing.B) {
	list := "test-file.txt; test,file.txt ;;build/*;reports/**/*.html;model.pkl"

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = SplitList(list)
	}
}

func BenchmarkObjectKey(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = storage.ObjectKey("test-directory", "test-file/test,file/test,file-copy.txt")
	}
}

func BenchmarkRequirementDiff(b *testing.B) {
	desired := requirements.NewManifest(
		requirements.Requirement{Name: "ipykernel", Version: "5.3.0"},
		requirements.Requirement{Name: "papermill", Version: "2.1.0"},
		requirements.Requirement{Name: "packaging", Version: "20.0"},
		requirements.Requirement{Name: "minio", Version: "5.0.10"},
	)
	current := requirements.NewManifest(
		requirements.Requirement{Name: "papermill", Version: "2.0.0"},
		requirements.Requirement{Name: "packaging", Version: "20.4"},
		requirements.Requirement{Name: "minio", Version: "git+https://github.com/minio/minio-py"},
	)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = requirements.Diff(desired, current)
	}
}

// countingTransfer accepts every put without touching storage.
type countingTransfer struct{ puts int }

func (c *countingTransfer) Fetch(ctx context.Context, name string) error { return nil }

func (c *countingTransfer) Put(ctx context.Context, name, remoteName string) (string, error) {
	c.puts++
	return name, nil
}

func BenchmarkProcessOutputs(b *testing.B) {
	dir := b.TempDir()
	chdir(b, dir)
	for _, f := range []string{"build/a.txt", "build/b.txt", "build/sub/c.txt"} {
		mustWrite(b, f, "x")
	}
	tr := &countingTransfer{}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ProcessOutputs(context.Background(), tr, []string{"build"}, nopLogger); err != nil {
			b.Fatalf("ProcessOutputs failed: %v", err)
		}
	}
}
