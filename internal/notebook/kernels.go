package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
)

// KernelSpec is an installed kernel.
type KernelSpec struct {
	Name        string
	DisplayName string
	Language    string
	Dir         string
}

// KernelLister lists the kernels available on this machine in discovery order.
type KernelLister interface {
	Kernels() ([]KernelSpec, error)
}

// KernelDirs scans Jupyter data directories for kernels/<name>/kernel.json. A kernel name
// found in an earlier directory hides the same name in later ones.
type KernelDirs struct {
	Dirs []string
}

// DefaultDataDirs returns the Jupyter data path in search order.
func DefaultDataDirs(extra ...string) []string {
	var dirs []string
	if jp := os.Getenv("JUPYTER_PATH"); jp != "" {
		dirs = append(dirs, filepath.SplitList(jp)...)
	}
	if d := os.Getenv("JUPYTER_DATA_DIR"); d != "" {
		dirs = append(dirs, d)
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "jupyter"))
	}
	if p := os.Getenv("CONDA_PREFIX"); p != "" {
		dirs = append(dirs, filepath.Join(p, "share", "jupyter"))
	}
	dirs = append(dirs, "/opt/conda/share/jupyter", "/usr/local/share/jupyter", "/usr/share/jupyter")
	return append(dirs, extra...)
}

type kernelJSON struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

func (k KernelDirs) Kernels() ([]KernelSpec, error) {
	seen := map[string]bool{}
	var specs []KernelSpec
	for _, dir := range k.Dirs {
		entries, err := os.ReadDir(filepath.Join(dir, "kernels"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list kernels in %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			kdir := filepath.Join(dir, "kernels", e.Name())
			raw, err := os.ReadFile(filepath.Join(kdir, "kernel.json"))
			if err != nil {
				continue
			}
			var kj kernelJSON
			if err := json.Unmarshal(jsonc.ToJSON(raw), &kj); err != nil {
				continue
			}
			seen[e.Name()] = true
			specs = append(specs, KernelSpec{
				Name:        strings.ToLower(e.Name()),
				DisplayName: kj.DisplayName,
				Language:    kj.Language,
				Dir:         kdir,
			})
		}
	}
	return specs, nil
}

// StaticKernels is a fixed kernel list.
type StaticKernels []KernelSpec

func (s StaticKernels) Kernels() ([]KernelSpec, error) { return s, nil }

// FindBestKernel returns the kernel to run nb with. The declared kernel wins when it is
// installed; otherwise the first installed kernel for the declared language is used. When
// neither matches the declared name is returned and execution is left to fail.
func FindBestKernel(nb *Notebook, available []KernelSpec, logger zerolog.Logger) string {
	name := nb.KernelName()
	for _, k := range available {
		if k.Name == name {
			return name
		}
	}
	lang := nb.Language()
	if lang != "" {
		for _, k := range available {
			if strings.EqualFold(k.Language, lang) {
				logger.Info().
					Str("declared", name).
					Str("kernel", k.Name).
					Str("language", lang).
					Msgf("could not find kernel '%s', using kernel '%s' for language '%s'", name, k.Name, lang)
				return k.Name
			}
		}
	}
	logger.Warn().
		Str("declared", name).
		Str("language", lang).
		Msgf("could not find kernel '%s' or a kernel for language '%s', keeping declared kernel", name, lang)
	return name
}
