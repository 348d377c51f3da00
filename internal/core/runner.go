package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/elyra-ai/kfp-notebook/internal/metadata"
	"github.com/elyra-ai/kfp-notebook/internal/notebook"
	"github.com/elyra-ai/kfp-notebook/internal/operation"
	"github.com/elyra-ai/kfp-notebook/internal/report"
	"github.com/elyra-ai/kfp-notebook/internal/requirements"
	"github.com/elyra-ai/kfp-notebook/internal/storage"
	"github.com/elyra-ai/kfp-notebook/internal/storage/localfs"
	"github.com/elyra-ai/kfp-notebook/internal/storage/s3"
	"github.com/elyra-ai/kfp-notebook/internal/storage/sftpfs"
	"github.com/elyra-ai/kfp-notebook/internal/telemetry"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// DefaultRegistry knows every backend the runner ships with.
func DefaultRegistry() *storage.Registry {
	r := storage.NewRegistry()
	r.Register(s3.New, "http", "https")
	r.Register(localfs.New, "file")
	r.Register(sftpfs.New, "sftp")
	return r
}

// Runner executes one pipeline node: install requirements, stage dependencies, run the
// notebook or script, upload outputs and write the UI metadata.
type Runner struct {
	Params      RunParameters
	Settings    Settings
	Credentials Credentials
	Logger      zerolog.Logger

	// Optional collaborators; defaults are built from Settings.
	Registry       *storage.Registry
	Engine         notebook.Engine
	Kernels        notebook.KernelLister
	PackageManager requirements.PackageManager
}

func (r *Runner) defaults() {
	if r.Registry == nil {
		r.Registry = DefaultRegistry()
	}
	if r.Engine == nil {
		r.Engine = &notebook.Papermill{Binary: r.Settings.Papermill, Logger: r.Logger}
	}
	if r.Kernels == nil {
		r.Kernels = notebook.KernelDirs{Dirs: notebook.DefaultDataDirs(r.Settings.KernelDirs...)}
	}
	if r.PackageManager == nil {
		r.PackageManager = &requirements.Pip{Python: r.Settings.Python}
	}
}

// Run executes the node. Every fatal condition ends up in a failed outcome; side effects that
// happened before the failure are listed on it.
func (r *Runner) Run(ctx context.Context) api.Outcome {
	r.defaults()
	opName := filepath.Base(r.Params.File)
	log := r.Logger.With().Str("pipeline", r.Settings.PipelineName).Str("operation", opName).Logger()
	collector := telemetry.NewCollector(log, r.Settings.PipelineName, opName, r.Settings.PipelineInfo)
	defer collector.Flush()

	if err := r.Params.Validate(); err != nil {
		return failed(err)
	}

	var journal *Store
	runID := ""
	if r.Settings.JournalPath != "" {
		s, err := NewStore(r.Settings.JournalPath)
		if err == nil {
			if err = s.Ping(ctx); err != nil {
				_ = s.Close()
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("journal", r.Settings.JournalPath).Msg("run journal disabled")
		} else {
			defer s.Close()
			if runID, err = s.StartRun(ctx, r.Settings.PipelineName, r.Params.File); err != nil {
				log.Warn().Err(err).Msg("run journal disabled")
			} else {
				journal = s
			}
		}
	}

	out := r.run(ctx, log, collector, journal, runID)

	if journal != nil {
		// the run context may already be cancelled
		if err := journal.FinishRun(context.WithoutCancel(ctx), runID, out.Status, out.Err); err != nil {
			log.Warn().Err(err).Msg("could not finish journal entry")
		}
	}
	return out
}

func (r *Runner) run(ctx context.Context, log zerolog.Logger, collector *telemetry.Collector, journal *Store, runID string) api.Outcome {
	installer := &requirements.Installer{
		DesiredPath: r.Settings.Requirements.Desired,
		CurrentPath: r.Settings.Requirements.Current,
		Manager:     r.PackageManager,
		Logger:      log,
	}
	err := collector.WithStep(telemetry.StepInstall, "packages installed", func() error {
		_, err := installer.Install(ctx, r.Params.UserVolumePath)
		return err
	})
	if err != nil {
		return failed(fmt.Errorf("install requirements: %w", err))
	}

	kind, err := operation.Resolve(r.Params.File)
	if err != nil {
		return failed(err)
	}

	backend, err := r.Registry.Open(r.storageConfig())
	if err != nil {
		return failed(err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	gw := NewGateway(backend, r.Params.Directory, log).WithTelemetry(collector)
	if journal != nil {
		gw.WithJournal(journal, runID)
	}

	err = collector.WithStep(telemetry.StepFetch, "dependencies processed", func() error {
		return ProcessDependencies(ctx, gw, r.Params.Archive, r.Params.InputList(), ".", log)
	})
	if err != nil {
		return failed(err)
	}

	op, err := operation.New(kind, operation.Deps{
		File:     r.Params.File,
		Uploader: gw,
		Logger:   log,
		Engine:   r.Engine,
		Kernels:  r.Kernels,
		Renderer: &report.Renderer{Style: r.Settings.ReportStyle},
		Python:   r.Settings.Python,
	})
	if err != nil {
		return failed(err)
	}

	execCtx := ctx
	if r.Settings.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.Settings.ExecutionTimeout)
		defer cancel()
	}
	scope := collector.StartStep(telemetry.StepExecute, string(kind)+" execution completed")
	out := op.Execute(execCtx)
	scope.End()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && out.Failed() {
		out.Err = fmt.Errorf("execution exceeded %s: %w", r.Settings.ExecutionTimeout, out.Err)
	}
	if out.Failed() {
		return out
	}

	err = collector.WithStep(telemetry.StepOutputs, "output artifacts processed", func() error {
		names, err := ProcessOutputs(ctx, gw, r.Params.OutputList(), log)
		for _, n := range names {
			out.Record(api.SideEffectUpload, n, gw.Key(n), nil)
		}
		return err
	})
	if err != nil {
		out.Status = api.RunFailed
		out.Err = err
		return out
	}

	_ = collector.WithStep(telemetry.StepMetadata, "metadata processed", func() error {
		reporter := &metadata.Reporter{
			WorkDir:   ".",
			OutputDir: r.Settings.OutputDir,
			Endpoint:  r.Params.Endpoint,
			Bucket:    r.Params.Bucket,
			Directory: r.Params.Directory,
			Archive:   r.Params.Archive,
			File:      r.Params.File,
			Logger:    log,
		}
		reporter.Process()
		return nil
	})
	return out
}

func (r *Runner) storageConfig() storage.Config {
	cfg := storage.Config{
		Endpoint:  r.Params.Endpoint,
		Bucket:    r.Params.Bucket,
		AccessKey: r.Credentials.AccessKey,
		SecretKey: r.Credentials.SecretKey,
		Region:    r.Settings.Storage.Region,
	}
	cfg.SFTP.KeyPath = r.Settings.Storage.SFTP.KeyPath
	cfg.SFTP.KnownHosts = r.Settings.Storage.SFTP.KnownHosts
	return cfg
}

func failed(err error) api.Outcome {
	return api.Outcome{Status: api.RunFailed, Err: err}
}
