// Package telemetry times the steps of a node run and reports them through the log.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Histogram MetricType = "histogram"
	Timer     MetricType = "timer"
)

// Metric represents a telemetry metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector keeps the metrics of one run. Every metric carries the pipeline and operation
// labels the collector was created with.
type Collector struct {
	mu        sync.Mutex
	metrics   []Metric
	logger    zerolog.Logger
	pipeline  string
	operation string
	// info enables the per-step operation info lines.
	info bool
}

// NewCollector creates a collector for one operation of a pipeline.
func NewCollector(logger zerolog.Logger, pipeline, operation string, info bool) *Collector {
	return &Collector{
		logger:    logger,
		pipeline:  pipeline,
		operation: operation,
		info:      info,
	}
}

func (c *Collector) labels(extra map[string]string) map[string]string {
	l := map[string]string{"pipeline": c.pipeline, "operation": c.operation}
	for k, v := range extra {
		l[k] = v
	}
	return l
}

// Counter increments a counter metric
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: c.labels(labels)})
}

// Histogram records a histogram value
func (c *Collector) Histogram(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Histogram, Value: value, Labels: c.labels(labels)})
}

// Timer records a duration measurement
func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.add(Metric{
		Name:   name,
		Type:   Timer,
		Value:  float64(duration.Milliseconds()),
		Labels: c.labels(labels),
		Unit:   "ms",
	})
}

func (c *Collector) add(m Metric) {
	m.Timestamp = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
}

// OperationInfo logs "'<pipeline>':'<operation>' - <action> (<secs> secs)" when pipeline
// info is enabled.
func (c *Collector) OperationInfo(action string, d time.Duration) {
	if !c.info {
		return
	}
	c.logger.Info().Msgf("'%s':'%s' - %s (%.3f secs)", c.pipeline, c.operation, action, d.Seconds())
}

// GetMetrics returns a copy of current metrics
func (c *Collector) GetMetrics() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Metric, len(c.metrics))
	copy(result, c.metrics)
	return result
}

// Flush logs a summary of the collected metrics and clears them.
func (c *Collector) Flush() {
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) == 0 {
		return
	}

	totals := map[string]float64{}
	for _, m := range metrics {
		c.logger.Debug().
			Str("name", m.Name).
			Str("type", string(m.Type)).
			Float64("value", m.Value).
			Interface("labels", m.Labels).
			Msg("telemetry_metric")
		totals[m.Name] += m.Value
	}
	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	sort.Strings(names)
	ev := c.logger.Info().Int("count", len(metrics))
	for _, n := range names {
		ev = ev.Float64(n, totals[n])
	}
	ev.Msg("run telemetry")
}
