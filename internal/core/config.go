package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elyra-ai/kfp-notebook/internal/operation"
	"github.com/elyra-ai/kfp-notebook/internal/storage"
)

// Settings are the runner options that do not come from the node's command line.
type Settings struct {
	// OutputDir is where the orchestrator collects the UI metadata and metrics files.
	OutputDir string `yaml:"output_dir"`
	// PipelineInfo enables the per-step timing lines.
	PipelineInfo bool `yaml:"pipeline_info"`
	// PipelineName labels log lines; normally set by the orchestrator.
	PipelineName string `yaml:"pipeline_name"`

	Python     string   `yaml:"python"`
	Papermill  string   `yaml:"papermill"`
	KernelDirs []string `yaml:"kernel_dirs"`
	// ExecutionTimeout bounds notebook and script execution. Zero means no limit.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	ReportStyle      string        `yaml:"report_style"`

	JournalPath     string `yaml:"journal_path"`
	CredentialsFile string `yaml:"credentials_file"`

	Requirements struct {
		Desired string `yaml:"desired"`
		Current string `yaml:"current"`
	} `yaml:"requirements"`

	Storage struct {
		Region string `yaml:"region"`
		SFTP   struct {
			KeyPath    string `yaml:"key_path"`
			KnownHosts string `yaml:"known_hosts"`
		} `yaml:"sftp"`
	} `yaml:"storage"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	var s Settings
	s.OutputDir = "/tmp"
	s.PipelineInfo = true
	s.PipelineName = "unknown"
	s.Python = "python3"
	s.Papermill = "papermill"
	s.Requirements.Desired = "requirements-elyra.txt"
	s.Requirements.Current = "requirements-current.txt"
	if home, err := os.UserHomeDir(); err == nil {
		s.Storage.SFTP.KeyPath = filepath.Join(home, ".ssh", "id_ed25519")
		s.Storage.SFTP.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}
	return s
}

// DefaultConfigPath resolves $XDG_CONFIG_HOME/kfp-notebook/config.yaml or
// ~/.config/kfp-notebook/config.yaml.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "kfp-notebook", "config.yaml")
}

// LoadSettings reads YAML settings from path. If path is empty, $KFP_NOTEBOOK_CONFIG is used,
// then the default config path; only a missing default file is tolerated. Environment
// variables set by the orchestrator override the file.
func LoadSettings(path string) (Settings, error) {
	cfg := DefaultSettings()
	optional := false
	if path == "" {
		path = os.Getenv("KFP_NOTEBOOK_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath()
		optional = true
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (s *Settings) applyEnv() error {
	if v := os.Getenv("ELYRA_WRITABLE_CONTAINER_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("ELYRA_RUN_NAME"); v != "" {
		s.PipelineName = v
	}
	if v := os.Getenv("ELYRA_ENABLE_PIPELINE_INFO"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ELYRA_ENABLE_PIPELINE_INFO: %w", err)
		}
		s.PipelineInfo = b
	}
	return nil
}

// RunParameters are the command line arguments of one node run.
type RunParameters struct {
	Endpoint       string
	Bucket         string
	Directory      string
	Archive        string
	File           string
	Inputs         string
	Outputs        string
	UserVolumePath string
}

// Validate checks the parameters before anything touches the network.
func (p RunParameters) Validate() error {
	required := []struct{ flag, value string }{
		{"cos-endpoint", p.Endpoint},
		{"cos-bucket", p.Bucket},
		{"cos-dependencies-archive", p.Archive},
		{"file", p.File},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("--%s must not be empty", r.flag)
		}
	}
	if _, err := storage.ParseEndpoint(p.Endpoint); err != nil {
		return err
	}
	if _, err := operation.Resolve(p.File); err != nil {
		return err
	}
	for _, name := range append(SplitList(p.Inputs), SplitList(p.Outputs)...) {
		if filepath.IsAbs(name) {
			return fmt.Errorf("artifact %q must be relative to the working directory", name)
		}
	}
	return nil
}

// InputList returns the declared inputs.
func (p RunParameters) InputList() []string { return SplitList(p.Inputs) }

// OutputList returns the declared outputs.
func (p RunParameters) OutputList() []string { return SplitList(p.Outputs) }

// OutputDirWritable reports whether the metadata output directory can be written to.
func (s Settings) OutputDirWritable() error {
	f, err := os.CreateTemp(s.OutputDir, ".kfp-notebook-*")
	if err != nil {
		return fmt.Errorf("output dir %s: %w", s.OutputDir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
