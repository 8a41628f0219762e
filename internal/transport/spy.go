// internal/transport/spy.go
package transport

import (
	"context"
	"sync"
	"time"

	"hardware-service/internal/model"
)

// SpyTransport records every write for inspection. Drivers are exercised
// against it in tests, and it doubles as the transport for simulated devices.
type SpyTransport struct {
	mu       sync.Mutex
	open     bool
	writes   [][]byte
	readData []byte
	stats    statsRecorder

	// OpenErr, WriteErr and ReadErr, when set, are returned by the matching
	// call to simulate transport failures.
	OpenErr  error
	WriteErr error
	ReadErr  error
}

func NewSpyTransport() *SpyTransport {
	return &SpyTransport{}
}

func (s *SpyTransport) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.open = true
	return nil
}

func (s *SpyTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *SpyTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *SpyTransport) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return model.NewTransportError("write", model.ErrDeviceNotConnected)
	}
	if s.WriteErr != nil {
		s.stats.recordError()
		return s.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.writes = append(s.writes, buf)
	s.stats.recordWrite(len(data), time.Now())
	return nil
}

func (s *SpyTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, model.NewTransportError("read", model.ErrDeviceNotConnected)
	}
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	n := len(s.readData)
	if n > maxBytes {
		n = maxBytes
	}
	data := s.readData[:n]
	s.readData = s.readData[n:]
	s.stats.recordRead(n)
	return data, nil
}

func (s *SpyTransport) Kind() model.TransportKind {
	return model.TransportUSB
}

func (s *SpyTransport) Stats() Stats {
	return s.stats.snapshot()
}

// Writes returns a copy of everything written so far.
func (s *SpyTransport) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// WriteCount returns the number of writes recorded.
func (s *SpyTransport) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// QueueRead sets the bytes returned by subsequent reads.
func (s *SpyTransport) QueueRead(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readData = append(s.readData, data...)
}
