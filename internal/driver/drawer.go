// internal/driver/drawer.go
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/encoder"
	"hardware-service/internal/event"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
)

// DrawerDriver opens cash drawers. Most drawers hang off a printer's kick
// connector, in which case the pulse is routed through that printer's job
// queue so it serializes with receipts; standalone drawers get the pulse on
// their own transport. Drawers have no close sensor, so DRAWER_CLOSED is
// emitted on a fixed timer after each open.
type DrawerDriver struct {
	registry       *registry.Registry
	bus            *event.Bus
	printers       *PrinterDriver
	conns          *connections
	logger         *zap.Logger
	openDelay      time.Duration
	closeDelay     time.Duration
	connectTimeout time.Duration

	mutex  sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// DrawerOption adjusts driver behavior.
type DrawerOption func(*DrawerDriver)

// WithCloseDelay overrides the assumed-close delay.
func WithCloseDelay(delay time.Duration) DrawerOption {
	return func(d *DrawerDriver) {
		if delay > 0 {
			d.closeDelay = delay
		}
	}
}

// WithOpenDelay sets the default settle delay applied before the kick pulse.
// Drawers wired through slow solenoid relays need the pulse held off until
// the relay is energized.
func WithOpenDelay(delay time.Duration) DrawerOption {
	return func(d *DrawerDriver) {
		if delay > 0 {
			d.openDelay = delay
		}
	}
}

// NewDrawerDriver creates the drawer driver. printers may be nil when no
// printer-linked drawers exist.
func NewDrawerDriver(reg *registry.Registry, bus *event.Bus, printers *PrinterDriver, factory TransportFactory, logger *zap.Logger, opts ...DrawerOption) *DrawerDriver {
	d := &DrawerDriver{
		registry:       reg,
		bus:            bus,
		printers:       printers,
		conns:          newConnections(factory, logger),
		logger:         logger.With(zap.String("driver", "drawer")),
		closeDelay:     3 * time.Second,
		connectTimeout: 15 * time.Second,
		timers:         make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenDrawer fires the kick pulse and emits DRAWER_OPENED, then DRAWER_CLOSED
// once the close delay elapses. The reason is carried on the event for the
// cash audit trail.
func (d *DrawerDriver) OpenDrawer(ctx context.Context, deviceID uuid.UUID, reason string) error {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindCashDrawer)
	if err != nil {
		return err
	}

	pin := 2
	if v, ok := device.TransportConfig["drawer_pin"]; ok {
		if n, ok := intFromJSON(v); ok {
			pin = n
		}
	}
	kick, err := encoder.DrawerKick(pin)
	if err != nil {
		return err
	}

	if delay := d.effectiveOpenDelay(device); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if printerID, ok := linkedPrinter(device); ok {
		if d.printers == nil {
			return model.ErrDeviceNotFound
		}
		if _, err := d.printers.PrintRaw(ctx, printerID, kick); err != nil {
			d.registry.RecordOperation(deviceID, false)
			return err
		}
	} else {
		tr, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout)
		if err != nil {
			return err
		}
		if err := tr.Write(ctx, kick); err != nil {
			d.registry.UpdateStatus(deviceID, model.DeviceStatusError, err.Error())
			d.registry.RecordOperation(deviceID, false)
			return err
		}
	}

	d.registry.RecordOperation(deviceID, true)
	d.bus.Publish(model.NewEvent(model.EventDrawerOpened, deviceID, model.JSONObject{
		"reason": reason,
	}))
	d.logger.Info("Drawer opened",
		zap.String("device_id", deviceID.String()),
		zap.String("reason", reason),
	)

	d.scheduleClose(deviceID)
	return nil
}

// effectiveOpenDelay reads the device's open_delay_ms override, falling back
// to the driver default.
func (d *DrawerDriver) effectiveOpenDelay(device *model.Device) time.Duration {
	if v, ok := device.TransportConfig["open_delay_ms"]; ok {
		if ms, ok := intFromJSON(v); ok && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return d.openDelay
}

// scheduleClose arms the assumed-close timer. A still-pending timer from a
// previous open fires its close immediately so every open gets exactly one
// close.
func (d *DrawerDriver) scheduleClose(deviceID uuid.UUID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if timer, ok := d.timers[deviceID]; ok {
		if timer.Stop() {
			d.emitClosed(deviceID)
		}
	}

	d.timers[deviceID] = time.AfterFunc(d.closeDelay, func() {
		d.mutex.Lock()
		delete(d.timers, deviceID)
		d.mutex.Unlock()
		d.emitClosed(deviceID)
	})
}

func (d *DrawerDriver) emitClosed(deviceID uuid.UUID) {
	d.bus.Publish(model.NewEvent(model.EventDrawerClosed, deviceID, nil))
	d.logger.Debug("Drawer assumed closed", zap.String("device_id", deviceID.String()))
}

// Stop fires any pending close timers and releases transports.
func (d *DrawerDriver) Stop() {
	d.mutex.Lock()
	pending := make([]uuid.UUID, 0, len(d.timers))
	for id, timer := range d.timers {
		if timer.Stop() {
			pending = append(pending, id)
		}
		delete(d.timers, id)
	}
	d.mutex.Unlock()

	for _, id := range pending {
		d.emitClosed(id)
	}
	d.conns.closeAll()
}

// linkedPrinter reads the printer the drawer's kick cable is attached to.
func linkedPrinter(device *model.Device) (uuid.UUID, bool) {
	raw, ok := device.TransportConfig["printer_id"].(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func intFromJSON(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
