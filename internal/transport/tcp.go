// internal/transport/tcp.go
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// DefaultRawPort is the JetDirect raw printing port used by networked
// receipt printers.
const DefaultRawPort = 9100

// TCPTransport drives network-attached peripherals over a raw socket.
type TCPTransport struct {
	config       model.NetworkConfig
	dialTimeout  time.Duration
	ioTimeout    time.Duration
	conn         net.Conn
	logger       *zap.Logger
	mutex        sync.RWMutex
	isOpen       bool
	stats        statsRecorder
}

// NewTCPTransport creates a TCP transport. A zero port falls back to the raw
// printing port.
func NewTCPTransport(config model.NetworkConfig, ioTimeout time.Duration, logger *zap.Logger) *TCPTransport {
	if config.Port == 0 {
		config.Port = DefaultRawPort
	}
	if ioTimeout <= 0 {
		ioTimeout = 30 * time.Second
	}
	return &TCPTransport{
		config:      config,
		dialTimeout: 10 * time.Second,
		ioTimeout:   ioTimeout,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

func (tt *TCPTransport) Open(ctx context.Context) error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if tt.isOpen {
		return nil
	}

	address := fmt.Sprintf("%s:%d", tt.config.Host, tt.config.Port)
	tt.logger.Info("Opening TCP connection", zap.String("address", address))

	dialer := &net.Dialer{
		Timeout:   tt.dialTimeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		tt.logger.Error("Failed to open TCP connection", zap.Error(err))
		return model.NewTransportError("open", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tt.conn = conn
	tt.isOpen = true
	tt.stats.touch()

	tt.logger.Info("TCP connection opened")
	return nil
}

func (tt *TCPTransport) Close() error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if !tt.isOpen || tt.conn == nil {
		return nil
	}

	if err := tt.conn.Close(); err != nil {
		tt.logger.Error("Failed to close TCP connection", zap.Error(err))
		return model.NewTransportError("close", err)
	}

	tt.conn = nil
	tt.isOpen = false
	return nil
}

func (tt *TCPTransport) IsOpen() bool {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()
	return tt.isOpen && tt.conn != nil
}

func (tt *TCPTransport) Write(ctx context.Context, data []byte) error {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()

	if !tt.isOpen || tt.conn == nil {
		return model.NewTransportError("write", model.ErrDeviceNotConnected)
	}

	select {
	case <-ctx.Done():
		return model.NewTransportError("write", ctx.Err())
	default:
	}

	deadline := time.Now().Add(tt.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tt.conn.SetWriteDeadline(deadline)

	start := time.Now()
	n, err := tt.conn.Write(data)
	if err != nil {
		tt.stats.recordError()
		tt.logger.Error("TCP write failed", zap.Error(err))
		return model.NewTransportError("write", err)
	}
	if n != len(data) {
		return model.NewTransportError("write", fmt.Errorf("incomplete write: %d of %d bytes", n, len(data)))
	}

	tt.stats.recordWrite(len(data), start)
	tt.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

func (tt *TCPTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tt.mutex.RLock()
	defer tt.mutex.RUnlock()

	if !tt.isOpen || tt.conn == nil {
		return nil, model.NewTransportError("read", model.ErrDeviceNotConnected)
	}

	deadline := time.Now().Add(tt.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tt.conn.SetReadDeadline(deadline)

	buffer := make([]byte, maxBytes)
	done := make(chan readResult, 1)

	go func() {
		n, err := tt.conn.Read(buffer)
		if err != nil {
			done <- readResult{err: err}
			return
		}
		data := make([]byte, n)
		copy(data, buffer[:n])
		done <- readResult{data: data}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			tt.stats.recordError()
			return nil, model.NewTransportError("read", result.err)
		}
		tt.stats.recordRead(len(result.data))
		return result.data, nil
	case <-ctx.Done():
		return nil, model.NewTransportError("read", ctx.Err())
	}
}

func (tt *TCPTransport) Kind() model.TransportKind {
	return model.TransportNetwork
}

func (tt *TCPTransport) Stats() Stats {
	return tt.stats.snapshot()
}
