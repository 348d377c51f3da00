// Package metadata writes the documents the pipeline UI reads after a node has run.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/elyra-ai/kfp-notebook/internal/storage"
	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

const (
	UIMetadataFile = "mlpipeline-ui-metadata.json"
	MetricsFile    = "mlpipeline-metadata.json"
)

// Document is a UI metadata document. Keys other than outputs are kept as they were read.
type Document map[string]any

// Outputs returns the outputs list, or nil when the key is absent or not a list.
func (d Document) Outputs() []any {
	if v, ok := d["outputs"].([]any); ok {
		return v
	}
	return nil
}

// Append adds an output entry, replacing a non-list outputs value.
func (d Document) Append(out api.UIMetadataOutput) {
	d["outputs"] = append(d.Outputs(), out)
}

// Reporter produces the UI metadata and metrics files.
type Reporter struct {
	// WorkDir is where the executed unit left its metadata files.
	WorkDir string
	// OutputDir is the writable directory the orchestrator collects files from.
	OutputDir string

	Endpoint  string
	Bucket    string
	Directory string
	Archive   string
	File      string

	Logger zerolog.Logger
}

// ProvenanceEntry is the inline markdown entry linking a node to its dependency archive.
func (r *Reporter) ProvenanceEntry() api.UIMetadataOutput {
	link := strings.TrimRight(r.Endpoint, "/") + "/" + r.Bucket + "/" + storage.ObjectKey(r.Directory, r.Archive)
	return api.UIMetadataOutput{
		Storage: "inline",
		Source:  fmt.Sprintf("## Inputs for %s\n[%s](%s)", r.File, r.Archive, link),
		Type:    "markdown",
	}
}

// Process writes both documents and returns the paths written. Problems with either file are
// logged and never returned.
func (r *Reporter) Process() []string {
	var written []string
	if p, err := r.processUIMetadata(); err != nil {
		r.Logger.Warn().Err(err).Msg("could not write UI metadata")
	} else {
		written = append(written, p)
	}
	if p, ok := r.processMetrics(); ok {
		written = append(written, p)
	}
	return written
}

func (r *Reporter) readDocument() Document {
	src := filepath.Join(r.WorkDir, UIMetadataFile)
	b, err := os.ReadFile(src)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.Logger.Warn().Err(err).Str("file", src).Msg("could not read UI metadata, starting empty")
		}
		return Document{}
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		r.Logger.Warn().Err(err).Str("file", src).Msg("UI metadata is not a JSON object, starting empty")
		return Document{}
	}
	return doc
}

func (r *Reporter) processUIMetadata() (string, error) {
	doc := r.readDocument()
	doc.Append(r.ProvenanceEntry())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode UI metadata: %w", err)
	}
	dst := filepath.Join(r.OutputDir, UIMetadataFile)
	if err := os.WriteFile(dst, bytes.TrimRight(buf.Bytes(), "\n"), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	r.Logger.Debug().Str("file", dst).Int("outputs", len(doc.Outputs())).Msg("UI metadata written")
	return dst, nil
}

func (r *Reporter) processMetrics() (string, bool) {
	src := filepath.Join(r.WorkDir, MetricsFile)
	b, err := os.ReadFile(src)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.Logger.Warn().Err(err).Str("file", src).Msg("could not read metrics, skipping")
		}
		return "", false
	}
	if !json.Valid(b) {
		r.Logger.Warn().Str("file", src).Msg("metrics file is not valid JSON, skipping")
		return "", false
	}
	dst := filepath.Join(r.OutputDir, MetricsFile)
	if err := os.WriteFile(dst, b, 0o644); err != nil {
		r.Logger.Warn().Err(err).Str("file", dst).Msg("could not write metrics, skipping")
		return "", false
	}
	return dst, true
}
