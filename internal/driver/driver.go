// internal/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/internal/transport"
	"hardware-service/internal/utils"
)

// TransportFactory builds the transport for a device. Tests inject a factory
// returning a SpyTransport; production uses DefaultTransportFactory.
type TransportFactory func(device *model.Device, logger *zap.Logger) (transport.Transport, error)

// DefaultTransportFactory builds the transport from the device's stored
// transport config.
func DefaultTransportFactory(device *model.Device, logger *zap.Logger) (transport.Transport, error) {
	return transport.New(device.Transport, device.TransportConfig, logger)
}

// connections caches one transport per device so repeated operations reuse
// the open channel. Connect attempts for the same device are serialized.
type connections struct {
	factory TransportFactory
	logger  *zap.Logger
	mutex   sync.Mutex
	open    map[uuid.UUID]transport.Transport
}

func newConnections(factory TransportFactory, logger *zap.Logger) *connections {
	return &connections{
		factory: factory,
		logger:  logger,
		open:    make(map[uuid.UUID]transport.Transport),
	}
}

func (c *connections) get(device *model.Device) (transport.Transport, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if tr, ok := c.open[device.ID]; ok {
		return tr, nil
	}
	tr, err := c.factory(device, c.logger)
	if err != nil {
		return nil, err
	}
	c.open[device.ID] = tr
	return tr, nil
}

func (c *connections) drop(id uuid.UUID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if tr, ok := c.open[id]; ok {
		tr.Close()
		delete(c.open, id)
	}
}

func (c *connections) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for id, tr := range c.open {
		tr.Close()
		delete(c.open, id)
	}
}

func (c *connections) stats() map[uuid.UUID]transport.Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	out := make(map[uuid.UUID]transport.Stats, len(c.open))
	for id, tr := range c.open {
		out[id] = tr.Stats()
	}
	return out
}

// TransportStats reports per-device byte counters for this driver's cached
// transports.
func (d *PrinterDriver) TransportStats() map[uuid.UUID]transport.Stats { return d.conns.stats() }

func (d *ScannerDriver) TransportStats() map[uuid.UUID]transport.Stats { return d.conns.stats() }

func (d *DrawerDriver) TransportStats() map[uuid.UUID]transport.Stats { return d.conns.stats() }

func (d *PaymentDriver) TransportStats() map[uuid.UUID]transport.Stats { return d.conns.stats() }

// resolveDevice looks up a device and runs the pre-transport guards. Callers
// get ErrDeviceNotFound for a kind mismatch so a drawer id cannot be fed to
// the printer driver.
func resolveDevice(reg *registry.Registry, id uuid.UUID, kind model.DeviceKind) (*model.Device, error) {
	device, err := reg.Get(id)
	if err != nil {
		return nil, err
	}
	if kind != "" && device.Kind != kind {
		return nil, fmt.Errorf("device %s is %s, not %s: %w", id, device.Kind, kind, model.ErrDeviceNotFound)
	}
	if !device.Enabled {
		return nil, model.ErrDeviceDisabled
	}
	return device, nil
}

// ensureConnected returns an open transport for the device, walking the
// status machine through CONNECTING when the device is not yet CONNECTED.
// An open failure moves the device to ERROR and surfaces a TransportError.
func ensureConnected(ctx context.Context, reg *registry.Registry, conns *connections, device *model.Device, timeout time.Duration) (transport.Transport, error) {
	tr, err := conns.get(device)
	if err != nil {
		reg.UpdateStatus(device.ID, model.DeviceStatusError, err.Error())
		return nil, model.NewTransportError("open", err)
	}

	if device.Status == model.DeviceStatusConnected && tr.IsOpen() {
		return tr, nil
	}

	// A CONNECTED device with a dead transport has to pass through
	// DISCONNECTED before reconnecting.
	from := device.Status
	if from == model.DeviceStatusConnected {
		if err := reg.UpdateStatus(device.ID, model.DeviceStatusDisconnected, ""); err != nil {
			return nil, err
		}
		from = model.DeviceStatusDisconnected
	}

	ok, err := reg.CompareAndSetStatus(device.ID, from, model.DeviceStatusConnecting, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; someone else moved the status. If they connected,
		// ride along.
		current, err := reg.Get(device.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.DeviceStatusConnected && tr.IsOpen() {
			return tr, nil
		}
		return nil, model.ErrInvalidTransition
	}

	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dlog := utils.NewDeviceLogger(conns.logger, device.ID.String(), string(device.Kind))
	err = tr.Open(openCtx)
	dlog.LogConnection("open", err)
	if err != nil {
		reg.UpdateStatus(device.ID, model.DeviceStatusError, err.Error())
		conns.drop(device.ID)
		return nil, err
	}

	if err := reg.UpdateStatus(device.ID, model.DeviceStatusConnected, ""); err != nil {
		return nil, err
	}
	return tr, nil
}
