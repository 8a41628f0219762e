// internal/registry/registry.go
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
)

// Store persists registry mutations. The registry is authoritative in-memory;
// the store is written behind and its failures are logged, never fatal.
type Store interface {
	SaveDevice(device *model.Device) error
	DeleteDevice(id uuid.UUID) error
}

// allowedTransitions is the connection state machine. Only a successful
// connection test sets CONNECTED; an explicit disconnect is legal from any
// state.
var allowedTransitions = map[model.DeviceStatus]map[model.DeviceStatus]bool{
	model.DeviceStatusDisconnected: {
		model.DeviceStatusConnecting:   true,
		model.DeviceStatusDisconnected: true,
	},
	model.DeviceStatusConnecting: {
		model.DeviceStatusConnected:    true,
		model.DeviceStatusError:        true,
		model.DeviceStatusDisconnected: true,
	},
	model.DeviceStatusConnected: {
		model.DeviceStatusError:        true,
		model.DeviceStatusDisconnected: true,
	},
	model.DeviceStatusError: {
		model.DeviceStatusConnecting:   true,
		model.DeviceStatusConnected:    true, // retry success
		model.DeviceStatusDisconnected: true,
	},
}

// Registry holds the authoritative set of registered peripherals and their
// connection state.
type Registry struct {
	devices map[uuid.UUID]*model.Device
	mu      sync.RWMutex
	bus     *event.Bus
	store   Store
	pending chan storeOp
	logger  *zap.Logger
}

// storeOp is one write-behind store mutation. Exactly one of save and remove
// is set.
type storeOp struct {
	save   *model.Device
	remove uuid.UUID
}

// New creates a registry. bus and store may be nil. Store writes are drained
// by a single background worker so a slow store never holds up registry
// operations; the registry stays authoritative in memory either way.
func New(bus *event.Bus, store Store, logger *zap.Logger) *Registry {
	r := &Registry{
		devices: make(map[uuid.UUID]*model.Device),
		bus:     bus,
		store:   store,
		logger:  logger,
	}
	if store != nil {
		r.pending = make(chan storeOp, 256)
		go r.storeLoop()
	}
	return r
}

// storeLoop drains write-behind store mutations in order. Failures are
// logged, never surfaced.
func (r *Registry) storeLoop() {
	for op := range r.pending {
		var err error
		if op.save != nil {
			err = r.store.SaveDevice(op.save)
		} else {
			err = r.store.DeleteDevice(op.remove)
		}
		if err != nil {
			id := op.remove
			if op.save != nil {
				id = op.save.ID
			}
			r.logger.Warn("Store write failed",
				zap.String("device_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// enqueueStoreOp hands a mutation to the store worker without blocking. When
// the queue is full the write is dropped; the next mutation of the same
// device re-saves the full row.
func (r *Registry) enqueueStoreOp(op storeOp) {
	select {
	case r.pending <- op:
	default:
		r.logger.Warn("Store queue full, dropping write")
	}
}

// Register adds a device and assigns it a time-ordered unique id. New devices
// always start DISCONNECTED.
func (r *Registry) Register(device *model.Device) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	device.ID = id
	device.Status = model.DeviceStatusDisconnected
	device.CreatedAt = now
	device.UpdatedAt = now
	r.devices[id] = device

	r.persist(device)
	r.logger.Info("Device registered",
		zap.String("device_id", id.String()),
		zap.String("name", device.Name),
		zap.String("kind", string(device.Kind)),
		zap.String("transport", string(device.Transport)),
	)
	return id, nil
}

// Get returns a copy of the device, so callers cannot mutate registry state.
func (r *Registry) Get(id uuid.UUID) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

// List returns copies of all registered devices.
func (r *Registry) List() []*model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		copied := *d
		devices = append(devices, &copied)
	}
	return devices
}

// ListByKind returns copies of all devices of the given kind.
func (r *Registry) ListByKind(kind model.DeviceKind) []*model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*model.Device
	for _, d := range r.devices {
		if d.Kind == kind {
			copied := *d
			devices = append(devices, &copied)
		}
	}
	return devices
}

// UpdateStatus transitions a device through the connection state machine and
// emits the matching lifecycle event. Illegal transitions are rejected.
func (r *Registry) UpdateStatus(id uuid.UUID, status model.DeviceStatus, errMsg string) error {
	r.mu.Lock()
	device, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return model.ErrDeviceNotFound
	}

	prev := device.Status
	if !allowedTransitions[prev][status] {
		r.mu.Unlock()
		return model.ErrInvalidTransition
	}

	r.applyStatus(device, status, errMsg)
	r.mu.Unlock()

	r.emitTransition(device, prev, status, errMsg)
	return nil
}

// CompareAndSetStatus transitions only if the device is still in the expected
// prior state, so concurrent connection tests cannot clobber each other.
// Returns false without error when the expectation does not hold.
func (r *Registry) CompareAndSetStatus(id uuid.UUID, expected, status model.DeviceStatus, errMsg string) (bool, error) {
	r.mu.Lock()
	device, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return false, model.ErrDeviceNotFound
	}
	if device.Status != expected {
		r.mu.Unlock()
		return false, nil
	}
	if !allowedTransitions[expected][status] {
		r.mu.Unlock()
		return false, model.ErrInvalidTransition
	}

	r.applyStatus(device, status, errMsg)
	r.mu.Unlock()

	r.emitTransition(device, expected, status, errMsg)
	return true, nil
}

// applyStatus mutates the device under r.mu.
func (r *Registry) applyStatus(device *model.Device, status model.DeviceStatus, errMsg string) {
	device.Status = status
	device.UpdatedAt = time.Now()

	switch status {
	case model.DeviceStatusConnected:
		now := time.Now()
		device.LastConnectedAt = &now
		device.LastError = nil
	case model.DeviceStatusError:
		if errMsg != "" {
			device.LastError = &errMsg
		}
	}
	r.persist(device)
}

// emitTransition publishes lifecycle events on the matching transitions only.
func (r *Registry) emitTransition(device *model.Device, prev, status model.DeviceStatus, errMsg string) {
	if r.bus == nil || prev == status {
		return
	}

	switch status {
	case model.DeviceStatusConnected:
		r.bus.Publish(model.NewEvent(model.EventDeviceConnected, device.ID, model.JSONObject{
			"name": device.Name,
			"kind": string(device.Kind),
		}))
	case model.DeviceStatusDisconnected:
		r.bus.Publish(model.NewEvent(model.EventDeviceDisconnected, device.ID, nil))
	case model.DeviceStatusError:
		ev := model.NewEvent(model.EventDeviceError, device.ID, nil)
		ev.Error = errMsg
		r.bus.Publish(ev)
	}
}

// RecordOperation updates the monotonic operation counters. Only the queue
// processor calls this.
func (r *Registry) RecordOperation(id uuid.UUID, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return
	}
	device.OperationCount++
	if !success {
		device.ErrorCount++
	}
	device.UpdatedAt = time.Now()
	r.persist(device)
}

// SetEnabled toggles a device. Disabled devices reject all operations before
// any transport call.
func (r *Registry) SetEnabled(id uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return model.ErrDeviceNotFound
	}
	device.Enabled = enabled
	device.UpdatedAt = time.Now()
	r.persist(device)
	return nil
}

// Remove deletes a device from the registry.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return model.ErrDeviceNotFound
	}
	delete(r.devices, id)

	if r.store != nil {
		r.enqueueStoreOp(storeOp{remove: id})
	}
	r.logger.Info("Device removed", zap.String("device_id", id.String()))
	return nil
}

// persist hands a copy of the device to the store worker, if one is
// configured. Called with r.mu held; the copy keeps the worker off live
// registry state.
func (r *Registry) persist(device *model.Device) {
	if r.store == nil {
		return
	}
	copied := *device
	r.enqueueStoreOp(storeOp{save: &copied})
}

// Load seeds the registry from previously persisted devices. Connection state
// is not trusted across restarts; every device comes back DISCONNECTED.
func (r *Registry) Load(devices []*model.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range devices {
		copied := *d
		copied.Status = model.DeviceStatusDisconnected
		r.devices[copied.ID] = &copied
	}
	r.logger.Info("Registry loaded from store", zap.Int("devices", len(devices)))
}
