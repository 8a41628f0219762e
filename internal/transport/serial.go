// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// SerialTransport drives RS-232 peripherals (older receipt printers, most
// payment terminals, pole displays).
type SerialTransport struct {
	config  model.SerialConfig
	timeout time.Duration
	port    serial.Port
	logger  *zap.Logger
	mutex   sync.RWMutex
	isOpen  bool
	stats   statsRecorder
}

// NewSerialTransport creates a serial transport for the given port settings.
func NewSerialTransport(config model.SerialConfig, timeout time.Duration, logger *zap.Logger) *SerialTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SerialTransport{
		config:  config,
		timeout: timeout,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		return nil
	}

	st.logger.Info("Opening serial port",
		zap.Int("baud_rate", st.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: st.config.DataBits,
		StopBits: serial.StopBits(st.config.StopBits),
	}

	switch st.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return model.NewTransportError("open", err)
	}

	if err := port.SetReadTimeout(st.timeout); err != nil {
		port.Close()
		return model.NewTransportError("open", err)
	}

	st.port = port
	st.isOpen = true
	st.stats.touch()

	st.logger.Info("Serial port opened")
	return nil
}

func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil
	}

	if err := st.port.Close(); err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return model.NewTransportError("close", err)
	}

	st.port = nil
	st.isOpen = false
	return nil
}

func (st *SerialTransport) IsOpen() bool {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.isOpen && st.port != nil
}

func (st *SerialTransport) Write(ctx context.Context, data []byte) error {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	if !st.isOpen || st.port == nil {
		return model.NewTransportError("write", model.ErrDeviceNotConnected)
	}

	select {
	case <-ctx.Done():
		return model.NewTransportError("write", ctx.Err())
	default:
	}

	start := time.Now()
	n, err := st.port.Write(data)
	if err != nil {
		st.stats.recordError()
		st.logger.Error("Serial write failed", zap.Error(err))
		return model.NewTransportError("write", err)
	}
	if n != len(data) {
		return model.NewTransportError("write", fmt.Errorf("incomplete write: %d of %d bytes", n, len(data)))
	}

	st.stats.recordWrite(len(data), start)
	st.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

func (st *SerialTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	if !st.isOpen || st.port == nil {
		return nil, model.NewTransportError("read", model.ErrDeviceNotConnected)
	}

	buffer := make([]byte, maxBytes)
	done := make(chan readResult, 1)

	go func() {
		n, err := st.port.Read(buffer)
		if err != nil && err != io.EOF {
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
			st.stats.recordError()
			return nil, model.NewTransportError("read", result.err)
		}
		st.stats.recordRead(len(result.data))
		return result.data, nil
	case <-ctx.Done():
		return nil, model.NewTransportError("read", ctx.Err())
	}
}

func (st *SerialTransport) Kind() model.TransportKind {
	return model.TransportSerial
}

func (st *SerialTransport) Stats() Stats {
	return st.stats.snapshot()
}

type readResult struct {
	data []byte
	err  error
}
