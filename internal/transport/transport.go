// internal/transport/transport.go
package transport

import (
	"context"
	"sync"
	"time"

	"hardware-service/internal/model"
)

// Transport is the byte channel to a physical device. Implementations are
// safe for concurrent use; Write and Read honor the context deadline.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	Kind() model.TransportKind
	Stats() Stats
}

// Stats is a point-in-time snapshot of a transport's byte counts and latency.
type Stats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
}

// statsRecorder guards the counters with its own lock, so concurrent Write
// and Read calls holding the transport's read lock do not race on them.
type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) recordWrite(n int, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.BytesWritten += int64(n)
	r.s.OperationCount++
	r.s.LastActivity = time.Now()
	latency := time.Since(start)
	if r.s.AverageLatency == 0 {
		r.s.AverageLatency = latency
	} else {
		r.s.AverageLatency = (r.s.AverageLatency + latency) / 2
	}
}

func (r *statsRecorder) recordRead(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.BytesRead += int64(n)
	r.s.OperationCount++
	r.s.LastActivity = time.Now()
}

func (r *statsRecorder) recordError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.ErrorCount++
}

func (r *statsRecorder) touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.LastActivity = time.Now()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
