package operation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elyra-ai/kfp-notebook/internal/notebook"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// NotebookOp executes a notebook, renders it to HTML and uploads both. The executed notebook
// is uploaded under the original notebook name so later nodes can pick it up.
type NotebookOp struct {
	deps Deps
}

func (o *NotebookOp) Kind() Kind { return KindNotebook }

// Files returns the executed notebook and HTML report names produced for the notebook.
func (o *NotebookOp) Files() (executed, html string) {
	name := baseName(o.deps.File)
	return name + "-output.ipynb", name + ".html"
}

func (o *NotebookOp) Execute(ctx context.Context) api.Outcome {
	log := o.deps.Logger
	out := succeeded()
	executed, html := o.Files()
	remote := filepath.Base(o.deps.File)

	log.Info().Str("notebook", o.deps.File).Str("output", executed).Msg("executing notebook")
	if err := o.run(ctx, executed); err != nil {
		log.Error().Err(err).Str("notebook", o.deps.File).Msg("notebook execution failed")
		fail(&out, err)
		o.diagnostics(ctx, &out, executed, html, remote)
		return out
	}

	if errs := o.publish(ctx, &out, executed, html, remote); len(errs) > 0 {
		fail(&out, errors.Join(errs...))
	}
	return out
}

func (o *NotebookOp) run(ctx context.Context, executed string) error {
	nb, err := notebook.Read(o.deps.File)
	if err != nil {
		return err
	}
	var available []notebook.KernelSpec
	if o.deps.Kernels != nil {
		available, err = o.deps.Kernels.Kernels()
		if err != nil {
			o.deps.Logger.Warn().Err(err).Msg("could not list installed kernels")
		}
	}
	kernel := notebook.FindBestKernel(nb, available, o.deps.Logger)
	return o.deps.Engine.Execute(ctx, o.deps.File, executed, kernel)
}

// diagnostics renders and uploads whatever the failed execution left behind. Errors are
// joined onto the outcome's error so the original failure stays first.
func (o *NotebookOp) diagnostics(ctx context.Context, out *api.Outcome, executed, html, remote string) {
	log := o.deps.Logger
	if _, err := os.Stat(executed); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("output", executed).Msg("no executed notebook was produced, nothing to upload")
		return
	}
	if errs := o.publish(ctx, out, executed, html, remote); len(errs) > 0 {
		out.Err = errors.Join(append([]error{out.Err}, errs...)...)
	}
}

// publish renders the executed notebook and uploads it together with the report. The
// executed notebook is uploaded even when rendering fails.
func (o *NotebookOp) publish(ctx context.Context, out *api.Outcome, executed, html, remote string) []error {
	var errs []error
	err := o.deps.Renderer.RenderFile(executed, html, baseName(o.deps.File))
	out.Record(api.SideEffectRender, html, "", err)
	if err != nil {
		o.deps.Logger.Warn().Err(err).Str("output", executed).Msg("could not convert notebook to html")
		errs = append(errs, fmt.Errorf("convert notebook to html: %w", err))
	}
	if err := upload(ctx, o.deps.Uploader, out, executed, remote); err != nil {
		errs = append(errs, err)
	}
	if _, statErr := os.Stat(html); statErr == nil {
		if err := upload(ctx, o.deps.Uploader, out, html, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
