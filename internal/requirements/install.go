package requirements

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// PackageManager installs specifiers and reports what is installed.
type PackageManager interface {
	Install(ctx context.Context, args []string) error
	Freeze(ctx context.Context) ([]string, error)
}

// Pip drives `python -m pip`.
type Pip struct {
	Python string
	Env    []string
}

func (p *Pip) python() string {
	if p.Python == "" {
		return "python3"
	}
	return p.Python
}

func (p *Pip) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, p.python(), append([]string{"-m", "pip"}, args...)...)
	cmd.Env = append(os.Environ(), p.Env...)
	return cmd
}

func (p *Pip) Install(ctx context.Context, args []string) error {
	cmd := p.command(ctx, append([]string{"install"}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return fmt.Errorf("pip install exited with code %d: %s", exit.ExitCode(), lastLines(out, 20))
		}
		return fmt.Errorf("pip install: %w", err)
	}
	return nil
}

func (p *Pip) Freeze(ctx context.Context) ([]string, error) {
	out, err := p.command(ctx, "freeze").Output()
	if err != nil {
		return nil, fmt.Errorf("pip freeze: %w", err)
	}
	var lines []string
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		if l := strings.TrimSpace(s.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Installer brings the environment up to the desired manifest.
type Installer struct {
	DesiredPath string
	CurrentPath string
	Manager     PackageManager
	Logger      zerolog.Logger
	// Setenv is used to export PIP_CONFIG_FILE; defaults to os.Setenv.
	Setenv func(key, value string) error
}

// Plan parses both manifests and computes the install list without installing anything.
func (in *Installer) Plan() ([]string, []Decision, error) {
	desired, err := ParseFile(in.DesiredPath)
	if err != nil {
		return nil, nil, err
	}
	current, err := ParseFile(in.CurrentPath)
	if err != nil {
		return nil, nil, err
	}
	install, decisions := Diff(desired, current)
	return install, decisions, nil
}

// Install applies the plan. With a user volume path the packages are installed into that
// directory and pip is pointed at the pip.conf found there.
func (in *Installer) Install(ctx context.Context, userVolumePath string) ([]string, error) {
	if _, err := os.Stat(in.DesiredPath); errors.Is(err, os.ErrNotExist) {
		in.Logger.Info().Str("manifest", in.DesiredPath).Msg("no requirements manifest, skipping package installation")
		return nil, nil
	}
	install, decisions, err := in.Plan()
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if d.Warning() {
			in.Logger.Warn().Str("package", d.Name).Msg(d.Message())
		} else if d.Action != ActionKeepEqual {
			in.Logger.Info().Str("package", d.Name).Msg(d.Message())
		}
	}

	if len(install) > 0 {
		args := install
		if userVolumePath != "" {
			args = append([]string{"--target=" + userVolumePath}, install...)
			args = append(args, "--no-cache-dir")
		}
		if err := in.Manager.Install(ctx, args); err != nil {
			return install, err
		}
	}

	if userVolumePath != "" {
		setenv := in.Setenv
		if setenv == nil {
			setenv = os.Setenv
		}
		if err := setenv("PIP_CONFIG_FILE", filepath.Join(userVolumePath, "pip.conf")); err != nil {
			return install, fmt.Errorf("set PIP_CONFIG_FILE: %w", err)
		}
	}

	frozen, err := in.Manager.Freeze(ctx)
	if err != nil {
		in.Logger.Warn().Err(err).Msg("could not list installed packages")
	} else {
		for _, l := range frozen {
			in.Logger.Debug().Str("package", l).Msg("installed")
		}
	}
	return install, nil
}
