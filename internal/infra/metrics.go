package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	pagesFetched     atomic.Uint64
	recordsFetched   atomic.Uint64
	ordersSaved      atomic.Uint64
	pricePointsSaved atomic.Uint64
	errorsTotal      atomic.Uint64

	// Gauges
	activeStreams atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordPage records a fetched page and the number of records it carried.
func (m *Metrics) RecordPage(records int) {
	m.pagesFetched.Add(1)
	m.recordsFetched.Add(uint64(records))
}

// RecordOrdersSaved records persisted order rows.
func (m *Metrics) RecordOrdersSaved(n uint64) {
	m.ordersSaved.Add(n)
}

// RecordPricePointsSaved records persisted price rows.
func (m *Metrics) RecordPricePointsSaved(n uint64) {
	m.pricePointsSaved.Add(n)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementStreams increments active stream connections by 1.
func (m *Metrics) IncrementStreams() {
	m.activeStreams.Add(1)
}

// DecrementStreams decrements active stream connections by 1.
func (m *Metrics) DecrementStreams() {
	m.activeStreams.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	PagesFetched     uint64
	RecordsFetched   uint64
	OrdersSaved      uint64
	PricePointsSaved uint64
	ErrorsTotal      uint64
	ActiveStreams    int32
	Timestamp        time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PagesFetched:     m.pagesFetched.Load(),
		RecordsFetched:   m.recordsFetched.Load(),
		OrdersSaved:      m.ordersSaved.Load(),
		PricePointsSaved: m.pricePointsSaved.Load(),
		ErrorsTotal:      m.errorsTotal.Load(),
		ActiveStreams:    m.activeStreams.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.pagesFetched.Store(0)
	m.recordsFetched.Store(0)
	m.ordersSaved.Store(0)
	m.pricePointsSaved.Store(0)
	m.errorsTotal.Store(0)
	m.activeStreams.Store(0)
}
