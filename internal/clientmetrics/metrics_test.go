package clientmetrics

import (
	"testing"
	"time"
)

func TestRecordCollectiveAccumulates(t *testing.T) {
	m := New()
	m.RecordCollective("allgather", 10, 40)
	m.RecordCollective("allgather", 10, 40)
	m.RecordCollective("barrier", 0, 0)
	m.IncrementErrors()

	s := m.Snapshot()
	if s.Collectives != 3 {
		t.Fatalf("Collectives = %d, want 3", s.Collectives)
	}
	if s.BytesSent != 20 || s.BytesReceived != 80 {
		t.Fatalf("bytes = %d/%d, want 20/80", s.BytesSent, s.BytesReceived)
	}
	if s.Errors != 1 {
		t.Fatalf("Errors = %d, want 1", s.Errors)
	}
	if s.ByOp["allgather"] != 2 || s.ByOp["barrier"] != 1 {
		t.Fatalf("ByOp = %v", s.ByOp)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New()
	m.RecordCollective("reduce", 8, 0)
	s := m.Snapshot()
	s.ByOp["reduce"] = 100

	if got := m.Snapshot().ByOp["reduce"]; got != 1 {
		t.Fatalf("snapshot mutation leaked: ByOp[reduce] = %d", got)
	}
}

func TestConnectionDuration(t *testing.T) {
	m := New()
	if d := m.Snapshot().ConnectionDuration; d != 0 {
		t.Fatalf("duration before MarkConnected = %v, want 0", d)
	}
	m.MarkConnected()
	time.Sleep(5 * time.Millisecond)
	if d := m.Snapshot().ConnectionDuration; d < 5*time.Millisecond {
		t.Fatalf("duration = %v, want >= 5ms", d)
	}
}
