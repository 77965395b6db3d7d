package infra

import (
	"testing"
)

func TestMetrics_RecordPage(t *testing.T) {
	m := &Metrics{}

	m.RecordPage(50)
	m.RecordPage(50)
	m.RecordPage(12)

	snap := m.Snapshot()

	if snap.PagesFetched != 3 {
		t.Errorf("Expected 3 pages, got %d", snap.PagesFetched)
	}
	if snap.RecordsFetched != 112 {
		t.Errorf("Expected 112 records, got %d", snap.RecordsFetched)
	}
}

func TestMetrics_Streams(t *testing.T) {
	m := &Metrics{}

	m.IncrementStreams()
	m.IncrementStreams()

	snap := m.Snapshot()
	if snap.ActiveStreams != 2 {
		t.Errorf("Expected 2 streams, got %d", snap.ActiveStreams)
	}

	m.DecrementStreams()
	snap = m.Snapshot()
	if snap.ActiveStreams != 1 {
		t.Errorf("Expected 1 stream, got %d", snap.ActiveStreams)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordPage(10)
	m.RecordOrdersSaved(5)
	m.RecordPricePointsSaved(7)
	m.RecordError()
	m.IncrementStreams()

	m.Reset()
	snap := m.Snapshot()

	if snap.PagesFetched != 0 || snap.RecordsFetched != 0 {
		t.Error("Expected 0 pages and records after reset")
	}
	if snap.OrdersSaved != 0 || snap.PricePointsSaved != 0 {
		t.Error("Expected 0 saved rows after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.ActiveStreams != 0 {
		t.Error("Expected 0 streams after reset")
	}
}
