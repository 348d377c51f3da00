package operation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// ScriptOp runs a python script with its combined output captured in <name>.log.
type ScriptOp struct {
	deps Deps
}

func (o *ScriptOp) Kind() Kind { return KindScript }

// LogFile is the name of the captured output file.
func (o *ScriptOp) LogFile() string { return baseName(o.deps.File) + ".log" }

func (o *ScriptOp) Execute(ctx context.Context) api.Outcome {
	log := o.deps.Logger
	out := succeeded()
	logFile := o.LogFile()

	log.Info().Str("script", o.deps.File).Str("log", logFile).Msg("executing python script")
	if err := o.run(ctx, logFile); err != nil {
		log.Error().Err(err).Str("script", o.deps.File).Msg("script execution failed")
		fail(&out, err)
		if _, statErr := os.Stat(logFile); statErr == nil {
			if upErr := upload(ctx, o.deps.Uploader, &out, logFile, ""); upErr != nil {
				out.Err = errors.Join(err, upErr)
			}
		}
		return out
	}
	if err := upload(ctx, o.deps.Uploader, &out, logFile, ""); err != nil {
		fail(&out, err)
	}
	return out
}

func (o *ScriptOp) run(ctx context.Context, logFile string) error {
	f, err := os.Create(logFile)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, o.deps.Python, o.deps.File)
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return fmt.Errorf("script %s exited with code %d", o.deps.File, exit.ExitCode())
		}
		return fmt.Errorf("run %s: %w", o.deps.File, err)
	}
	return nil
}
