package outbox

import "time"

// Metrics captures consumer-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to process a claimed batch.
	ObserveBatchDuration(duration time.Duration)
	// AddClaimed increments the count of claimed records.
	AddClaimed(count int)
	// AddAcked increments the count of acknowledged records.
	AddAcked(count int)
	// AddFailed increments the count of records marked failed.
	AddFailed(count int)
	// SetPending updates the current unacknowledged record count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddClaimed implements Metrics.
func (NopMetrics) AddClaimed(int) {}

// AddAcked implements Metrics.
func (NopMetrics) AddAcked(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
