package telemetry

import (
	"time"
)

// Step names used as the "step" label.
const (
	StepInstall  = "install"
	StepFetch    = "fetch"
	StepExecute  = "execute"
	StepOutputs  = "outputs"
	StepMetadata = "metadata"
)

// TimerScope represents a scoped timer for measuring durations
type TimerScope struct {
	startTime time.Time
	step      string
	action    string
	collector *Collector
}

// StartStep starts timing a step. The action is the text of the operation info line.
func (c *Collector) StartStep(step, action string) *TimerScope {
	return &TimerScope{startTime: time.Now(), step: step, action: action, collector: c}
}

// End completes the timer, records the duration and logs the operation info line.
func (ts *TimerScope) End() time.Duration {
	duration := time.Since(ts.startTime)
	ts.collector.Timer("kfp_notebook_step_duration", duration, map[string]string{"step": ts.step})
	ts.collector.OperationInfo(ts.action, duration)
	return duration
}

// WithStep runs fn inside a step scope.
func (c *Collector) WithStep(step, action string, fn func() error) error {
	scope := c.StartStep(step, action)
	err := fn()
	scope.End()
	return err
}

// RecordTransfer records one object storage fetch or put.
func (c *Collector) RecordTransfer(direction, name string, size int64, duration time.Duration, err error) {
	labels := map[string]string{
		"direction": direction,
		"object":    name,
	}

	c.Timer("kfp_notebook_transfer_duration", duration, labels)

	if err == nil {
		c.Counter("kfp_notebook_transfers_successful", 1, labels)
		c.Histogram("kfp_notebook_transfer_size_bytes", float64(size), labels)
		// Calculate throughput in MB/s
		if duration.Seconds() > 0 {
			throughputMBps := float64(size) / (1024 * 1024) / duration.Seconds()
			c.Histogram("kfp_notebook_transfer_throughput_mbps", throughputMBps, labels)
		}
	} else {
		c.Counter("kfp_notebook_transfers_failed", 1, labels)
	}
}
