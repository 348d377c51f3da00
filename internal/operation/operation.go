// Package operation executes the unit of work of a pipeline node. The file extension decides
// whether it is run as a notebook or as a python script.
package operation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/elyra-ai/kfp-notebook/internal/notebook"
	"github.com/elyra-ai/kfp-notebook/internal/report"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// ErrUnsupportedFileType is returned for files that are neither notebooks nor python scripts.
var ErrUnsupportedFileType = errors.New("unsupported file type")

type Kind string

const (
	KindNotebook Kind = "notebook"
	KindScript   Kind = "script"
)

// Resolve maps a file path to the kind of operation that runs it.
func Resolve(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ipynb":
		return KindNotebook, nil
	case ".py":
		return KindScript, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, path)
}

// Uploader puts a local file into the node's object storage directory and returns the key.
type Uploader interface {
	Put(ctx context.Context, name, remoteName string) (string, error)
}

// Operation runs the node's file and uploads its result artifacts. A failed execution is
// reported through the outcome after the diagnostic artifacts have been uploaded.
type Operation interface {
	Kind() Kind
	Execute(ctx context.Context) api.Outcome
}

// Deps are the collaborators shared by both operation kinds.
type Deps struct {
	// File is the notebook or script path relative to the working directory.
	File     string
	Uploader Uploader
	Logger   zerolog.Logger

	Engine   notebook.Engine
	Kernels  notebook.KernelLister
	Renderer *report.Renderer

	// Python is the interpreter used for scripts.
	Python string
}

// New binds an operation of the given kind to deps.
func New(kind Kind, deps Deps) (Operation, error) {
	if deps.Uploader == nil {
		return nil, errors.New("operation requires an uploader")
	}
	switch kind {
	case KindNotebook:
		if deps.Engine == nil {
			return nil, errors.New("notebook operation requires an engine")
		}
		if deps.Renderer == nil {
			deps.Renderer = &report.Renderer{}
		}
		return &NotebookOp{deps: deps}, nil
	case KindScript:
		if deps.Python == "" {
			deps.Python = "python3"
		}
		return &ScriptOp{deps: deps}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, kind)
}

// baseName is the file name without directory and extension.
func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

// upload records the upload on the outcome and returns its error.
func upload(ctx context.Context, u Uploader, out *api.Outcome, name, remoteName string) error {
	key, err := u.Put(ctx, name, remoteName)
	if remoteName == "" {
		remoteName = name
	}
	out.Record(api.SideEffectUpload, remoteName, key, err)
	return err
}

func succeeded() api.Outcome { return api.Outcome{Status: api.RunSucceeded} }

func fail(out *api.Outcome, err error) {
	out.Status = api.RunFailed
	out.Err = err
}
