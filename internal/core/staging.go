package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/rs/zerolog"

	"github.com/elyra-ai/kfp-notebook/internal/archive"
)

// Transfer is the part of Gateway the staging functions use.
type Transfer interface {
	Fetch(ctx context.Context, name string) error
	Put(ctx context.Context, name, remoteName string) (string, error)
}

// ProcessDependencies fetches the dependency archive and the declared inputs, then unpacks
// the archive into workDir. Any failure is fatal to the run.
func ProcessDependencies(ctx context.Context, t Transfer, archiveName string, inputs []string, workDir string, logger zerolog.Logger) error {
	if err := t.Fetch(ctx, archiveName); err != nil {
		return fmt.Errorf("fetch dependency archive %s: %w", archiveName, err)
	}
	for _, in := range inputs {
		if err := t.Fetch(ctx, in); err != nil {
			return fmt.Errorf("fetch input %s: %w", in, err)
		}
	}
	files, err := archive.ExtractFile(archiveName, workDir)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", archiveName, err)
	}
	logger.Info().Str("archive", archiveName).Int("files", len(files)).Msg("dependencies unpacked")
	return nil
}

// ProcessOutputs uploads the declared outputs and returns the local names uploaded. Entries
// with * or ? are expanded, matching directories are walked, and a plain name that does not
// exist fails the upload.
func ProcessOutputs(ctx context.Context, t Transfer, outputs []string, logger zerolog.Logger) ([]string, error) {
	var uploaded []string
	for _, out := range outputs {
		k, err := uploadOutput(ctx, t, out, logger)
		uploaded = append(uploaded, k...)
		if err != nil {
			return uploaded, err
		}
	}
	return uploaded, nil
}

func isPattern(name string) bool { return strings.ContainsAny(name, "*?") }

func uploadOutput(ctx context.Context, t Transfer, name string, logger zerolog.Logger) ([]string, error) {
	if isPattern(name) {
		matches, err := doublestar.Glob(name)
		if err != nil {
			return nil, fmt.Errorf("expand output %q: %w", name, err)
		}
		sort.Strings(matches)
		if len(matches) == 0 {
			logger.Info().Str("pattern", name).Msg("output pattern matched no files")
		}
		var uploaded []string
		for _, m := range matches {
			// matches are concrete paths, even when they contain wildcard characters
			k, err := uploadPath(ctx, t, m, logger)
			uploaded = append(uploaded, k...)
			if err != nil {
				return uploaded, err
			}
		}
		return uploaded, nil
	}
	return uploadPath(ctx, t, name, logger)
}

func uploadPath(ctx context.Context, t Transfer, name string, logger zerolog.Logger) ([]string, error) {
	st, err := os.Stat(name)
	if err == nil && st.IsDir() {
		entries, err := os.ReadDir(name)
		if err != nil {
			return nil, fmt.Errorf("read output directory %s: %w", name, err)
		}
		var uploaded []string
		for _, e := range entries {
			k, err := uploadPath(ctx, t, filepath.ToSlash(filepath.Join(name, e.Name())), logger)
			uploaded = append(uploaded, k...)
			if err != nil {
				return uploaded, err
			}
		}
		return uploaded, nil
	}
	if _, err := t.Put(ctx, name, ""); err != nil {
		return nil, fmt.Errorf("upload output %s: %w", name, err)
	}
	return []string{name}, nil
}
