package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elyra-ai/kfp-notebook/internal/storage"
	"github.com/elyra-ai/kfp-notebook/internal/telemetry"
)

// ArtifactRecorder receives every transfer made by a Gateway.
type ArtifactRecorder interface {
	RecordArtifact(ctx context.Context, a Artifact) error
}

// Gateway moves files between the working directory and the node's directory in the bucket.
// A local name maps to the same object key for both directions.
type Gateway struct {
	backend   storage.Backend
	dir       string
	logger    zerolog.Logger
	collector *telemetry.Collector
	journal   ArtifactRecorder
	runID     string
}

// NewGateway wraps backend with the directory prefix dir.
func NewGateway(backend storage.Backend, dir string, logger zerolog.Logger) *Gateway {
	return &Gateway{backend: backend, dir: dir, logger: logger}
}

// WithTelemetry records transfer timings on c.
func (g *Gateway) WithTelemetry(c *telemetry.Collector) *Gateway {
	g.collector = c
	return g
}

// WithJournal records transfers for the given run.
func (g *Gateway) WithJournal(j ArtifactRecorder, runID string) *Gateway {
	g.journal = j
	g.runID = runID
	return g
}

// Key is the object key for a local name.
func (g *Gateway) Key(name string) string { return storage.ObjectKey(g.dir, name) }

// Fetch downloads the object for name into the local file name.
func (g *Gateway) Fetch(ctx context.Context, name string) error {
	key := g.Key(name)
	start := time.Now()
	n, err := g.backend.Fetch(ctx, key, name)
	g.record(ctx, "fetch", name, key, n, time.Since(start), err)
	if err != nil {
		return err
	}
	return nil
}

// Put uploads the local file name under remoteName, or name when remoteName is empty, and
// returns the object key.
func (g *Gateway) Put(ctx context.Context, name, remoteName string) (string, error) {
	if remoteName == "" {
		remoteName = name
	}
	key := g.Key(remoteName)
	start := time.Now()
	n, err := g.backend.Put(ctx, key, name)
	g.record(ctx, "put", name, key, n, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return key, nil
}

func (g *Gateway) record(ctx context.Context, direction, name, key string, n int64, d time.Duration, err error) {
	ev := g.logger.Info()
	if err != nil {
		ev = g.logger.Error().Err(err)
	}
	ev.Str("backend", g.backend.Name()).
		Str("direction", direction).
		Str("file", name).
		Str("object", key).
		Int64("bytes", n).
		Dur("duration", d).
		Msg("object storage " + direction)

	if g.collector != nil {
		g.collector.RecordTransfer(direction, name, n, d, err)
		if err == nil {
			verb := "downloaded"
			if direction == "put" {
				verb = "uploaded"
			}
			g.collector.OperationInfo(verb+" "+name+" object: "+key, d)
		}
	}
	if g.journal != nil {
		a := Artifact{RunID: g.runID, Direction: direction, Name: name, Key: key, Bytes: n, Duration: d}
		if err != nil {
			a.Error = err.Error()
		}
		if jerr := g.journal.RecordArtifact(ctx, a); jerr != nil {
			g.logger.Warn().Err(jerr).Msg("could not journal transfer")
		}
	}
}
