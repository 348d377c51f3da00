package notebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Engine executes a notebook, writing the executed document to output. The output file is
// left in place when execution fails so the failing cell can be inspected.
type Engine interface {
	Execute(ctx context.Context, input, output, kernel string) error
}

// ExecutionError is returned when the engine ran but the notebook failed.
type ExecutionError struct {
	Notebook string
	ExitCode int
	Detail   string
}

func (e *ExecutionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("notebook %s failed with exit code %d", e.Notebook, e.ExitCode)
	}
	return fmt.Sprintf("notebook %s failed with exit code %d: %s", e.Notebook, e.ExitCode, e.Detail)
}

// Papermill runs notebooks with the papermill command line.
type Papermill struct {
	Binary string
	Logger zerolog.Logger
}

func (p *Papermill) binary() string {
	if p.Binary == "" {
		return "papermill"
	}
	return p.Binary
}

func (p *Papermill) Execute(ctx context.Context, input, output, kernel string) error {
	args := []string{input, output, "--log-output"}
	if kernel != "" {
		args = append(args, "-k", kernel)
	}
	cmd := exec.CommandContext(ctx, p.binary(), args...)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stdout = p.Logger.With().Str("stream", "stdout").Logger()
	cmd.Stderr = &stderr

	p.Logger.Debug().Str("cmd", p.binary()).Strs("args", args).Msg("executing notebook")
	err := cmd.Run()
	if stderr.Len() > 0 {
		p.Logger.Debug().Str("stream", "stderr").Msg(strings.TrimSpace(stderr.String()))
	}
	if err == nil {
		return nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return &ExecutionError{Notebook: input, ExitCode: exit.ExitCode(), Detail: lastLine(stderr.String())}
	}
	return fmt.Errorf("run %s on %s: %w", p.binary(), input, err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
