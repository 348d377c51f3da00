package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/elyra-ai/kfp-notebook/internal/metadata"
	"github.com/elyra-ai/kfp-notebook/internal/notebook"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

const notebookA = `{"cells": [{"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [],
  "source": ["import shutil\n", "shutil.copy('test-file.txt', 'test-file/test-file-copy.txt')"]}],
 "metadata": {"kernelspec": {"name": "python3", "display_name": "Python 3", "language": "python"}},
 "nbformat": 4, "nbformat_minor": 4}`

// fakeEngine stands in for papermill: it writes the executed notebook and the files the
// notebook would produce.
type fakeEngine struct {
	fail   bool
	kernel string
}

func (e *fakeEngine) Execute(ctx context.Context, input, output, kernel string) error {
	e.kernel = kernel
	b, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, b, 0o644); err != nil {
		return err
	}
	if e.fail {
		return &notebook.ExecutionError{Notebook: input, ExitCode: 1, Detail: "ZeroDivisionError"}
	}
	in, err := os.ReadFile("test-file.txt")
	if err != nil {
		return err
	}
	if err := os.MkdirAll("test-file/test,file", 0o755); err != nil {
		return err
	}
	if err := os.WriteFile("test-file/test-file-copy.txt", in, 0o644); err != nil {
		return err
	}
	other, err := os.ReadFile("test,file.txt")
	if err != nil {
		return err
	}
	return os.WriteFile("test-file/test,file/test,file-copy.txt", other, 0o644)
}

type noPip struct{}

func (noPip) Install(ctx context.Context, args []string) error { return errors.New("unexpected install") }
func (noPip) Freeze(ctx context.Context) ([]string, error)     { return nil, nil }

type scenario struct {
	runner    *Runner
	bucketDir string
	outputDir string
	engine    *fakeEngine
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	chdir(t, t.TempDir())
	root := t.TempDir()
	bucketDir := filepath.Join(root, "test-bucket")
	prefix := filepath.Join(bucketDir, "test-directory")
	mustWrite(t, filepath.Join(prefix, "test-archive.tgz"), string(tarball(t, map[string]string{"test-notebookA.ipynb": notebookA})))
	mustWrite(t, filepath.Join(prefix, "test-file.txt"), "first input")
	mustWrite(t, filepath.Join(prefix, "test,file.txt"), "second input")

	settings := DefaultSettings()
	settings.OutputDir = t.TempDir()
	settings.PipelineName = "e2e"
	settings.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	engine := &fakeEngine{}
	return &scenario{
		runner: &Runner{
			Params: RunParameters{
				Endpoint:  "file://" + root,
				Bucket:    "test-bucket",
				Directory: "test-directory",
				Archive:   "test-archive.tgz",
				File:      "test-notebookA.ipynb",
				Inputs:    "test-file.txt;test,file.txt",
				Outputs:   "test-file/test-file-copy.txt;test-file/test,file/test,file-copy.txt",
			},
			Settings:       settings,
			Logger:         nopLogger,
			Engine:         engine,
			Kernels:        notebook.StaticKernels{{Name: "python3", Language: "python"}},
			PackageManager: noPip{},
		},
		bucketDir: bucketDir,
		outputDir: settings.OutputDir,
		engine:    engine,
	}
}

func TestRunEndToEnd(t *testing.T) {
	s := newScenario(t)
	out := s.runner.Run(context.Background())
	if out.Failed() {
		t.Fatalf("run failed: %v", out.Err)
	}
	if s.engine.kernel != "python3" {
		t.Fatalf("kernel %q", s.engine.kernel)
	}

	local := []string{
		"test-archive.tgz",
		"test-file.txt",
		"test,file.txt",
		"test-file/test-file-copy.txt",
		"test-file/test,file/test,file-copy.txt",
		"test-notebookA.ipynb",
		"test-notebookA-output.ipynb",
		"test-notebookA.html",
	}
	for _, f := range local {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("%s missing from working directory: %v", f, err)
		}
	}

	want := []string{
		"test-directory/test,file.txt",
		"test-directory/test-archive.tgz",
		"test-directory/test-file.txt",
		"test-directory/test-file/test,file/test,file-copy.txt",
		"test-directory/test-file/test-file-copy.txt",
		"test-directory/test-notebookA.html",
		"test-directory/test-notebookA.ipynb",
	}
	if diff := cmp.Diff(want, objects(t, s.bucketDir)); diff != "" {
		t.Fatalf("bucket mismatch (-want +got):\n%s", diff)
	}

	uploaded := []string{
		"test-directory/test-notebookA.ipynb",
		"test-directory/test-notebookA.html",
		"test-directory/test-file/test-file-copy.txt",
		"test-directory/test-file/test,file/test,file-copy.txt",
	}
	if diff := cmp.Diff(uploaded, out.Uploaded()); diff != "" {
		t.Fatalf("side effects mismatch (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(filepath.Join(s.outputDir, metadata.UIMetadataFile))
	if err != nil {
		t.Fatalf("UI metadata not written: %v", err)
	}
	var doc struct {
		Outputs []api.UIMetadataOutput `json:"outputs"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Outputs) != 1 || doc.Outputs[0].Type != "markdown" {
		t.Fatalf("unexpected UI metadata %s", b)
	}

	store, err := NewStore(s.runner.Settings.JournalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	var runID string
	if err := store.db.QueryRow(`SELECT id FROM runs`).Scan(&runID); err != nil {
		t.Fatalf("journal run: %v", err)
	}
	run, err := store.GetRun(context.Background(), runID)
	if err != nil || run.Status != string(api.RunSucceeded) {
		t.Fatalf("journal status %+v %v", run, err)
	}
	arts, err := store.Artifacts(context.Background(), runID)
	if err != nil || len(arts) != 7 {
		t.Fatalf("expected 7 journaled transfers, got %d %v", len(arts), err)
	}
}

func TestRunNotebookFailure(t *testing.T) {
	s := newScenario(t)
	s.engine.fail = true
	out := s.runner.Run(context.Background())
	if !out.Failed() {
		t.Fatalf("expected failure")
	}
	var execErr *notebook.ExecutionError
	if !errors.As(out.Err, &execErr) {
		t.Fatalf("original error lost: %v", out.Err)
	}
	want := []string{
		"test-directory/test,file.txt",
		"test-directory/test-archive.tgz",
		"test-directory/test-file.txt",
		"test-directory/test-notebookA.html",
		"test-directory/test-notebookA.ipynb",
	}
	if diff := cmp.Diff(want, objects(t, s.bucketDir)); diff != "" {
		t.Fatalf("bucket mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(s.outputDir, metadata.UIMetadataFile)); !os.IsNotExist(err) {
		t.Fatalf("metadata must not be written for failed runs")
	}
}

func TestRunMissingOutput(t *testing.T) {
	s := newScenario(t)
	s.runner.Params.Outputs = "does-not-exist.txt"
	out := s.runner.Run(context.Background())
	if !out.Failed() {
		t.Fatalf("missing output must fail the run")
	}
}

func TestRunMissingArchive(t *testing.T) {
	s := newScenario(t)
	s.runner.Params.Archive = "other.tgz"
	out := s.runner.Run(context.Background())
	if !out.Failed() || len(out.SideEffects) != 0 {
		t.Fatalf("expected failure before execution, got %+v", out)
	}
}

func TestRunInvalidParameters(t *testing.T) {
	s := newScenario(t)
	s.runner.Params.File = "analysis.R"
	out := s.runner.Run(context.Background())
	if !out.Failed() {
		t.Fatalf("unsupported file must fail")
	}
}

func TestRunUnusableJournal(t *testing.T) {
	s := newScenario(t)
	s.runner.Settings.JournalPath = filepath.Join(t.TempDir(), "missing", "dir", "journal.db")
	out := s.runner.Run(context.Background())
	if out.Failed() {
		t.Fatalf("an unusable journal must not fail the run: %v", out.Err)
	}
	if _, err := os.Stat(s.runner.Settings.JournalPath); err == nil {
		t.Fatalf("journal should not have been created")
	}
}
