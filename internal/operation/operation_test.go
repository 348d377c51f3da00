package operation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/elyra-ai/kfp-notebook/internal/notebook"
	"github.com/elyra-ai/kfp-notebook/internal/storage"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

const simpleNotebook = `{"cells": [{"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": "1+1"}],
 "metadata": {"kernelspec": {"name": "python3", "language": "python"}}, "nbformat": 4, "nbformat_minor": 4}`

type fakeUploader struct {
	puts    map[string]string
	failFor string
}

func (f *fakeUploader) Put(ctx context.Context, name, remoteName string) (string, error) {
	if remoteName == "" {
		remoteName = name
	}
	if name == f.failFor {
		return "", storage.ErrNoSuchBucket
	}
	if _, err := os.Stat(name); err != nil {
		return "", storage.ErrLocalFileMissing
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	key := storage.ObjectKey("dir", remoteName)
	f.puts[key] = name
	return key, nil
}

// copyEngine copies the input to the output, optionally failing afterwards.
type copyEngine struct {
	kernel      string
	failAfter   bool
	writeOutput bool
	// body replaces the copied notebook when set
	body string
}

func (e *copyEngine) Execute(ctx context.Context, input, output, kernel string) error {
	e.kernel = kernel
	if e.writeOutput {
		b, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		if e.body != "" {
			b = []byte(e.body)
		}
		if err := os.WriteFile(output, b, 0o644); err != nil {
			return err
		}
	}
	if e.failAfter {
		return &notebook.ExecutionError{Notebook: input, ExitCode: 1}
	}
	return nil
}

func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestResolve(t *testing.T) {
	k, err := Resolve("analysis.ipynb")
	require.NoError(t, err)
	require.Equal(t, KindNotebook, k)

	k, err = Resolve("dir/train.py")
	require.NoError(t, err)
	require.Equal(t, KindScript, k)

	for _, p := range []string{"run.r", "notebook", "archive.tar.gz"} {
		_, err := Resolve(p)
		require.ErrorIs(t, err, ErrUnsupportedFileType, p)
	}
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(KindNotebook, Deps{File: "a.ipynb", Uploader: &fakeUploader{}})
	require.Error(t, err)
}

func TestNotebookSuccess(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("nb.ipynb", []byte(simpleNotebook), 0o644))

	up := &fakeUploader{}
	eng := &copyEngine{writeOutput: true}
	op, err := New(KindNotebook, Deps{
		File:     "nb.ipynb",
		Uploader: up,
		Engine:   eng,
		Kernels:  notebook.StaticKernels{{Name: "python3", Language: "python"}},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	out := op.Execute(context.Background())
	require.False(t, out.Failed(), "%v", out.Err)
	require.Equal(t, "python3", eng.kernel)
	require.Equal(t, []string{"dir/nb.ipynb", "dir/nb.html"}, out.Uploaded())
	require.Equal(t, "nb-output.ipynb", up.puts["dir/nb.ipynb"])
	require.FileExists(t, "nb.html")
}

func TestNotebookFailureUploadsDiagnostics(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("bad.ipynb", []byte(simpleNotebook), 0o644))

	up := &fakeUploader{}
	op, err := New(KindNotebook, Deps{File: "bad.ipynb", Uploader: up, Engine: &copyEngine{writeOutput: true, failAfter: true}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	out := op.Execute(context.Background())
	require.True(t, out.Failed())
	var execErr *notebook.ExecutionError
	require.True(t, errors.As(out.Err, &execErr))
	require.Equal(t, []string{"dir/bad.ipynb", "dir/bad.html"}, out.Uploaded())
	require.Equal(t, api.SideEffectRender, out.SideEffects[0].Kind)
}

func TestNotebookRenderFailureStillUploadsNotebook(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("nb.ipynb", []byte(simpleNotebook), 0o644))

	up := &fakeUploader{}
	op, err := New(KindNotebook, Deps{File: "nb.ipynb", Uploader: up, Engine: &copyEngine{writeOutput: true, body: "not a notebook"}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	out := op.Execute(context.Background())
	require.True(t, out.Failed())
	require.ErrorContains(t, out.Err, "convert notebook to html")
	require.Equal(t, []string{"dir/nb.ipynb"}, out.Uploaded())
	require.Equal(t, "nb-output.ipynb", up.puts["dir/nb.ipynb"])
	require.NoFileExists(t, "nb.html")
}

func TestNotebookFailureWithoutOutput(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("bad.ipynb", []byte(simpleNotebook), 0o644))

	op, err := New(KindNotebook, Deps{File: "bad.ipynb", Uploader: &fakeUploader{}, Engine: &copyEngine{failAfter: true}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	out := op.Execute(context.Background())
	require.True(t, out.Failed())
	require.Empty(t, out.SideEffects)
}

func TestNotebookInSubdirectory(t *testing.T) {
	chdir(t)
	require.NoError(t, os.MkdirAll("sub", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("sub", "nb.ipynb"), []byte(simpleNotebook), 0o644))

	up := &fakeUploader{}
	op, err := New(KindNotebook, Deps{File: "sub/nb.ipynb", Uploader: up, Engine: &copyEngine{writeOutput: true}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	out := op.Execute(context.Background())
	require.False(t, out.Failed(), "%v", out.Err)
	require.Equal(t, []string{"dir/nb.ipynb", "dir/nb.html"}, out.Uploaded())
}

func TestScriptSuccess(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("job.py", []byte("echo out\necho err >&2\n"), 0o644))

	up := &fakeUploader{}
	op, err := New(KindScript, Deps{File: "job.py", Uploader: up, Python: "/bin/sh", Logger: zerolog.Nop()})
	require.NoError(t, err)
	out := op.Execute(context.Background())
	require.False(t, out.Failed(), "%v", out.Err)
	require.Equal(t, []string{"dir/job.log"}, out.Uploaded())

	b, err := os.ReadFile("job.log")
	require.NoError(t, err)
	require.Contains(t, string(b), "out")
	require.Contains(t, string(b), "err")
}

func TestScriptFailureUploadsLog(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("job.py", []byte("echo failing\nexit 3\n"), 0o644))

	up := &fakeUploader{}
	op, err := New(KindScript, Deps{File: "job.py", Uploader: up, Python: "/bin/sh", Logger: zerolog.Nop()})
	require.NoError(t, err)
	out := op.Execute(context.Background())
	require.True(t, out.Failed())
	require.Contains(t, out.Err.Error(), "exited with code 3")
	require.Equal(t, []string{"dir/job.log"}, out.Uploaded())
}

func TestScriptUploadFailure(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("job.py", []byte("true\n"), 0o644))

	op, err := New(KindScript, Deps{File: "job.py", Uploader: &fakeUploader{failFor: "job.log"}, Python: "/bin/sh", Logger: zerolog.Nop()})
	require.NoError(t, err)
	out := op.Execute(context.Background())
	require.True(t, out.Failed())
	require.ErrorIs(t, out.Err, storage.ErrNoSuchBucket)
}
