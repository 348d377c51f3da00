package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestOperationInfo(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf), "my-pipeline", "nb.ipynb", true)
	c.OperationInfo("object storage download", 1500*time.Millisecond)
	if !strings.Contains(buf.String(), `'my-pipeline':'nb.ipynb' - object storage download (1.500 secs)`) {
		t.Fatalf("unexpected log line: %s", buf.String())
	}

	buf.Reset()
	quiet := NewCollector(zerolog.New(&buf), "p", "o", false)
	quiet.OperationInfo("anything", time.Second)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when pipeline info is disabled, got %s", buf.String())
	}
}

func TestStepAndTransfer(t *testing.T) {
	c := NewCollector(zerolog.Nop(), "p", "o", false)
	err := c.WithStep(StepExecute, "notebook execution", func() error { return errors.New("boom") })
	if err == nil || err.Error() != "boom" {
		t.Fatalf("WithStep must return fn's error, got %v", err)
	}
	c.RecordTransfer("put", "a.txt", 1024, 10*time.Millisecond, nil)
	c.RecordTransfer("fetch", "b.txt", 0, time.Millisecond, errors.New("missing"))

	metrics := c.GetMetrics()
	names := map[string]int{}
	for _, m := range metrics {
		names[m.Name]++
		if m.Labels["pipeline"] != "p" || m.Labels["operation"] != "o" {
			t.Fatalf("metric %s missing run labels: %v", m.Name, m.Labels)
		}
	}
	if names["kfp_notebook_step_duration"] != 1 {
		t.Fatalf("expected one step timer, got %v", names)
	}
	if names["kfp_notebook_transfers_successful"] != 1 || names["kfp_notebook_transfers_failed"] != 1 {
		t.Fatalf("unexpected transfer counters: %v", names)
	}
}

func TestFlushClears(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf), "p", "o", false)
	c.Counter("x", 2, nil)
	c.Counter("x", 3, nil)
	c.Flush()
	if len(c.GetMetrics()) != 0 {
		t.Fatalf("metrics not cleared")
	}
	if !strings.Contains(buf.String(), `"x":5`) {
		t.Fatalf("summary missing totals: %s", buf.String())
	}
}
