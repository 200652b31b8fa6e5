package clientmetrics

import (
	"sync"
	"time"
)

// ClientMetrics tracks collective traffic for one rank's endpoint.
type ClientMetrics struct {
	mu          sync.Mutex
	connectTime time.Time
	collectives int64
	bytesSent   int64
	bytesRecv   int64
	errors      int64
	byOp        map[string]int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{byOp: make(map[string]int64)}
}

// MarkConnected records the time the endpoint joined its group.
func (m *ClientMetrics) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectTime = time.Now()
}

// RecordCollective counts one completed collective call of the named kind
// along with the payload bytes contributed and received.
func (m *ClientMetrics) RecordCollective(op string, sent, received int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collectives++
	m.bytesSent += sent
	m.bytesRecv += received
	m.byOp[op]++
}

// IncrementErrors increments the error counter.
func (m *ClientMetrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration    `json:"-" yaml:"-"`
	Collectives        int64            `json:"collectives" yaml:"collectives"`
	BytesSent          int64            `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived      int64            `json:"bytes_received" yaml:"bytes_received"`
	Errors             int64            `json:"errors" yaml:"errors"`
	ByOp               map[string]int64 `json:"by_op,omitempty" yaml:"by_op,omitempty"`
}

// Snapshot returns a consistent snapshot of all counters.
func (m *ClientMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := time.Duration(0)
	if !m.connectTime.IsZero() {
		duration = time.Since(m.connectTime)
	}

	byOp := make(map[string]int64, len(m.byOp))
	for k, v := range m.byOp {
		byOp[k] = v
	}

	return Snapshot{
		ConnectionDuration: duration,
		Collectives:        m.collectives,
		BytesSent:          m.bytesSent,
		BytesReceived:      m.bytesRecv,
		Errors:             m.errors,
		ByOp:               byOp,
	}
}
