package observability

import (
	"sync/atomic"
)

// Metrics collects counters for the session registry and the fan-out
// executor. All methods are safe for concurrent use.
type Metrics struct {
	sessionsCreated atomic.Int64
	sessionsEnded   atomic.Int64
	sessionsActive  atomic.Int64

	fanoutStarted   atomic.Int64
	fanoutCompleted atomic.Int64
	fanoutStopped   atomic.Int64

	persistFailures atomic.Int64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSessionCreated increments the created counter and active gauge.
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Add(1)
	m.sessionsActive.Add(1)
}

// RecordSessionEnded increments the ended counter and decrements the
// active gauge.
func (m *Metrics) RecordSessionEnded() {
	m.sessionsEnded.Add(1)
	m.sessionsActive.Add(-1)
}

// RecordFanoutStarted records one fan-out item launched.
func (m *Metrics) RecordFanoutStarted() {
	m.fanoutStarted.Add(1)
}

// RecordFanoutCompleted records one fan-out item finished.
func (m *Metrics) RecordFanoutCompleted() {
	m.fanoutCompleted.Add(1)
}

// RecordFanoutStopped records an early-stop of a fan-out run.
func (m *Metrics) RecordFanoutStopped() {
	m.fanoutStopped.Add(1)
}

// RecordPersistFailure records a failed session persistence attempt.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	SessionsCreated int64 `json:"sessions_created"`
	SessionsEnded   int64 `json:"sessions_ended"`
	SessionsActive  int64 `json:"sessions_active"`
	FanoutStarted   int64 `json:"fanout_started"`
	FanoutCompleted int64 `json:"fanout_completed"`
	FanoutStopped   int64 `json:"fanout_stopped"`
	PersistFailures int64 `json:"persist_failures"`
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		SessionsCreated: m.sessionsCreated.Load(),
		SessionsEnded:   m.sessionsEnded.Load(),
		SessionsActive:  m.sessionsActive.Load(),
		FanoutStarted:   m.fanoutStarted.Load(),
		FanoutCompleted: m.fanoutCompleted.Load(),
		FanoutStopped:   m.fanoutStopped.Load(),
		PersistFailures: m.persistFailures.Load(),
	}
}
