// internal/driver/scanner.go
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/pkg/codes"
)

// ScannerDriver turns raw scanner input into classified ScanResults. Two
// input paths exist: keyboard-wedge scanners feed runes through Feed, and
// transport-attached scanners stream bytes through Listen. Both paths share
// the accumulator, which flushes on Enter or after a quiet gap, since wedge
// scanners type a whole code in one fast burst.
type ScannerDriver struct {
	registry       *registry.Registry
	bus            *event.Bus
	conns          *connections
	logger         *zap.Logger
	flushDelay     time.Duration
	connectTimeout time.Duration

	results chan model.ScanResult

	mutex        sync.Mutex
	accumulators map[uuid.UUID]*accumulator
	listeners    map[uuid.UUID]context.CancelFunc
}

type accumulator struct {
	buf   []rune
	timer *time.Timer
}

// ScannerOption adjusts driver behavior.
type ScannerOption func(*ScannerDriver)

// WithFlushDelay overrides the quiet gap that ends a scan burst.
func WithFlushDelay(delay time.Duration) ScannerOption {
	return func(d *ScannerDriver) {
		if delay > 0 {
			d.flushDelay = delay
		}
	}
}

// NewScannerDriver creates the scanner driver.
func NewScannerDriver(reg *registry.Registry, bus *event.Bus, factory TransportFactory, logger *zap.Logger, opts ...ScannerOption) *ScannerDriver {
	d := &ScannerDriver{
		registry:       reg,
		bus:            bus,
		conns:          newConnections(factory, logger),
		logger:         logger.With(zap.String("driver", "scanner")),
		flushDelay:     100 * time.Millisecond,
		connectTimeout: 15 * time.Second,
		results:        make(chan model.ScanResult, 64),
		accumulators:   make(map[uuid.UUID]*accumulator),
		listeners:      make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Results delivers one ScanResult per completed scan.
func (d *ScannerDriver) Results() <-chan model.ScanResult {
	return d.results
}

// Feed pushes one rune of keyboard-wedge input. Enter terminates a scan
// immediately; otherwise the burst ends after the flush delay.
func (d *ScannerDriver) Feed(deviceID uuid.UUID, r rune) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	acc := d.accumulators[deviceID]
	if acc == nil {
		acc = &accumulator{}
		d.accumulators[deviceID] = acc
	}

	if r == '\n' || r == '\r' {
		d.flushLocked(deviceID, acc)
		return
	}

	acc.buf = append(acc.buf, r)
	if acc.timer != nil {
		acc.timer.Stop()
	}
	acc.timer = time.AfterFunc(d.flushDelay, func() {
		d.mutex.Lock()
		defer d.mutex.Unlock()
		d.flushLocked(deviceID, acc)
	})
}

// FeedString validates the device and feeds a whole chunk of wedge input.
func (d *ScannerDriver) FeedString(deviceID uuid.UUID, input string) error {
	if _, err := resolveDevice(d.registry, deviceID, model.DeviceKindScanner); err != nil {
		return err
	}
	for _, r := range input {
		d.Feed(deviceID, r)
	}
	return nil
}

// flushLocked emits the accumulated code, if any. Caller holds the mutex.
func (d *ScannerDriver) flushLocked(deviceID uuid.UUID, acc *accumulator) {
	if acc.timer != nil {
		acc.timer.Stop()
		acc.timer = nil
	}
	if len(acc.buf) == 0 {
		return
	}

	code := string(acc.buf)
	acc.buf = nil

	result := model.ScanResult{
		Code:      code,
		Format:    codes.ClassifyBarcode(code),
		Timestamp: time.Now(),
		DeviceID:  deviceID,
	}

	d.registry.RecordOperation(deviceID, true)
	d.bus.Publish(model.NewEvent(model.EventScanComplete, deviceID, model.JSONObject{
		"code":   result.Code,
		"format": string(result.Format),
	}))

	select {
	case d.results <- result:
	default:
		d.logger.Warn("Scan result channel full, dropping scan",
			zap.String("device_id", deviceID.String()),
		)
	}

	d.logger.Info("Scan completed",
		zap.String("device_id", deviceID.String()),
		zap.String("format", string(result.Format)),
	)
}

// Listen reads the scanner's transport until the context ends, feeding bytes
// through the accumulator. Used for serial and network scanners.
func (d *ScannerDriver) Listen(ctx context.Context, deviceID uuid.UUID) error {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindScanner)
	if err != nil {
		return err
	}

	tr, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout)
	if err != nil {
		return err
	}

	d.logger.Info("Scanner listening", zap.String("device_id", deviceID.String()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := tr.Read(ctx, 64)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.registry.UpdateStatus(deviceID, model.DeviceStatusError, err.Error())
			return err
		}
		for _, b := range data {
			d.Feed(deviceID, rune(b))
		}
	}
}

// StartListening runs Listen in the background. Idempotent per device; the
// listener stops on StopListening, driver Stop, or a read error.
func (d *ScannerDriver) StartListening(deviceID uuid.UUID) error {
	if _, err := resolveDevice(d.registry, deviceID, model.DeviceKindScanner); err != nil {
		return err
	}

	d.mutex.Lock()
	if _, running := d.listeners[deviceID]; running {
		d.mutex.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.listeners[deviceID] = cancel
	d.mutex.Unlock()

	go func() {
		err := d.Listen(ctx, deviceID)
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("Scanner listener stopped",
				zap.String("device_id", deviceID.String()),
				zap.Error(err),
			)
		}
		d.mutex.Lock()
		delete(d.listeners, deviceID)
		d.mutex.Unlock()
	}()
	return nil
}

// StopListening cancels a background listener, if one is running.
func (d *ScannerDriver) StopListening(deviceID uuid.UUID) {
	d.mutex.Lock()
	cancel, ok := d.listeners[deviceID]
	if ok {
		delete(d.listeners, deviceID)
	}
	d.mutex.Unlock()
	if ok {
		cancel()
	}
}

// Stop cancels listeners and pending flush timers and closes transports.
func (d *ScannerDriver) Stop() {
	d.mutex.Lock()
	for _, acc := range d.accumulators {
		if acc.timer != nil {
			acc.timer.Stop()
		}
	}
	cancels := make([]context.CancelFunc, 0, len(d.listeners))
	for id, cancel := range d.listeners {
		cancels = append(cancels, cancel)
		delete(d.listeners, id)
	}
	d.mutex.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	d.conns.closeAll()
}
