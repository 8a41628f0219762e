// internal/registry/registry_test.go
package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
)

func newTestRegistry(t *testing.T) (*Registry, *event.Bus) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	go bus.Start()
	t.Cleanup(bus.Stop)
	return New(bus, nil, zap.NewNop()), bus
}

func registerPrinter(t *testing.T, r *Registry) uuid.UUID {
	t.Helper()
	id, err := r.Register(&model.Device{
		Name:      "Front Counter Printer",
		Kind:      model.DeviceKindPrinter,
		Transport: model.TransportUSB,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return id
}

func TestRegisterStartsDisconnected(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := registerPrinter(t, r)

	device, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if device.Status != model.DeviceStatusDisconnected {
		t.Errorf("new device status = %s, want DISCONNECTED", device.Status)
	}
	if device.ID != id {
		t.Error("assigned id does not match returned id")
	}
	if device.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    model.DeviceStatus
		to      model.DeviceStatus
		allowed bool
	}{
		{name: "disconnected to connecting", from: model.DeviceStatusDisconnected, to: model.DeviceStatusConnecting, allowed: true},
		{name: "disconnected straight to connected", from: model.DeviceStatusDisconnected, to: model.DeviceStatusConnected, allowed: false},
		{name: "connecting to connected", from: model.DeviceStatusConnecting, to: model.DeviceStatusConnected, allowed: true},
		{name: "connecting to error", from: model.DeviceStatusConnecting, to: model.DeviceStatusError, allowed: true},
		{name: "connected to error", from: model.DeviceStatusConnected, to: model.DeviceStatusError, allowed: true},
		{name: "connected back to connecting", from: model.DeviceStatusConnected, to: model.DeviceStatusConnecting, allowed: false},
		{name: "error retry to connecting", from: model.DeviceStatusError, to: model.DeviceStatusConnecting, allowed: true},
		{name: "error recovery to connected", from: model.DeviceStatusError, to: model.DeviceStatusConnected, allowed: true},
		{name: "error to disconnected", from: model.DeviceStatusError, to: model.DeviceStatusDisconnected, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			id := registerPrinter(t, r)
			driveTo(t, r, id, tt.from)

			err := r.UpdateStatus(id, tt.to, "")
			if tt.allowed && err != nil {
				t.Errorf("%s -> %s rejected: %v", tt.from, tt.to, err)
			}
			if !tt.allowed && !errors.Is(err, model.ErrInvalidTransition) {
				t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
		})
	}
}

// driveTo walks the device through legal transitions to the target state.
func driveTo(t *testing.T, r *Registry, id uuid.UUID, target model.DeviceStatus) {
	t.Helper()
	var steps []model.DeviceStatus
	switch target {
	case model.DeviceStatusDisconnected:
		return
	case model.DeviceStatusConnecting:
		steps = []model.DeviceStatus{model.DeviceStatusConnecting}
	case model.DeviceStatusConnected:
		steps = []model.DeviceStatus{model.DeviceStatusConnecting, model.DeviceStatusConnected}
	case model.DeviceStatusError:
		steps = []model.DeviceStatus{model.DeviceStatusConnecting, model.DeviceStatusError}
	}
	for _, s := range steps {
		if err := r.UpdateStatus(id, s, ""); err != nil {
			t.Fatalf("setup transition to %s failed: %v", s, err)
		}
	}
}

func TestConnectedSetsTimestampAndClearsError(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := registerPrinter(t, r)
	driveTo(t, r, id, model.DeviceStatusConnecting)
	if err := r.UpdateStatus(id, model.DeviceStatusError, "port gone"); err != nil {
		t.Fatalf("CONNECTING -> ERROR failed: %v", err)
	}

	if err := r.UpdateStatus(id, model.DeviceStatusConnected, ""); err != nil {
		t.Fatalf("ERROR -> CONNECTED failed: %v", err)
	}

	device, _ := r.Get(id)
	if device.LastConnectedAt == nil {
		t.Error("LastConnectedAt not set on CONNECTED")
	}
	if device.LastError != nil {
		t.Errorf("LastError not cleared on CONNECTED: %q", *device.LastError)
	}
}

func TestErrorStoresMessage(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := registerPrinter(t, r)
	driveTo(t, r, id, model.DeviceStatusConnecting)

	if err := r.UpdateStatus(id, model.DeviceStatusError, "write timeout"); err != nil {
		t.Fatalf("CONNECTING -> ERROR failed: %v", err)
	}

	device, _ := r.Get(id)
	if device.LastError == nil || *device.LastError != "write timeout" {
		t.Errorf("LastError = %v, want \"write timeout\"", device.LastError)
	}
}

func TestCompareAndSetStatusLosesCleanly(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := registerPrinter(t, r)
	driveTo(t, r, id, model.DeviceStatusConnecting)

	swapped, err := r.CompareAndSetStatus(id, model.DeviceStatusDisconnected, model.DeviceStatusConnecting, "")
	if err != nil {
		t.Fatalf("CompareAndSetStatus errored: %v", err)
	}
	if swapped {
		t.Error("stale expectation should not swap")
	}

	device, _ := r.Get(id)
	if device.Status != model.DeviceStatusConnecting {
		t.Errorf("device status = %s, want CONNECTING untouched", device.Status)
	}
}

func TestLifecycleEventsOnlyOnTransitions(t *testing.T) {
	r, bus := newTestRegistry(t)
	ch, subID := bus.Subscribe(model.EventDeviceConnected, model.EventDeviceDisconnected, model.EventDeviceError)
	defer bus.Unsubscribe(subID)

	id := registerPrinter(t, r)
	driveTo(t, r, id, model.DeviceStatusConnected)
	if err := r.UpdateStatus(id, model.DeviceStatusDisconnected, ""); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	// DISCONNECTED -> DISCONNECTED is legal but must not emit again
	if err := r.UpdateStatus(id, model.DeviceStatusDisconnected, ""); err != nil {
		t.Fatalf("idempotent disconnect failed: %v", err)
	}

	want := []model.EventKind{model.EventDeviceConnected, model.EventDeviceDisconnected}
	for i, kind := range want {
		select {
		case ev := <-ch:
			if ev.Kind != kind {
				t.Errorf("event %d kind = %s, want %s", i, ev.Kind, kind)
			}
			if ev.DeviceID != id {
				t.Errorf("event %d device = %s, want %s", i, ev.DeviceID, id)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d (%s)", i, kind)
		}
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoadResetsStatus(t *testing.T) {
	r, _ := newTestRegistry(t)

	stored := &model.Device{
		ID:      uuid.New(),
		Name:    "Back Office Printer",
		Kind:    model.DeviceKindPrinter,
		Status:  model.DeviceStatusConnected,
		Enabled: true,
	}
	r.Load([]*model.Device{stored})

	device, err := r.Get(stored.ID)
	if err != nil {
		t.Fatalf("Get after Load failed: %v", err)
	}
	if device.Status != model.DeviceStatusDisconnected {
		t.Errorf("loaded device status = %s, want DISCONNECTED", device.Status)
	}
}

func TestRemoveUnknownDevice(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Remove(uuid.New()); !errors.Is(err, model.ErrDeviceNotFound) {
		t.Errorf("Remove unknown = %v, want ErrDeviceNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := registerPrinter(t, r)

	device, _ := r.Get(id)
	device.Name = "mutated"

	again, _ := r.Get(id)
	if again.Name != "Front Counter Printer" {
		t.Error("caller mutation leaked into registry state")
	}
}

// gatedStore blocks every SaveDevice until the gate channel is closed, then
// records the saved device ids in arrival order.
type gatedStore struct {
	gate  chan struct{}
	saved chan uuid.UUID
}

func (s *gatedStore) SaveDevice(device *model.Device) error {
	<-s.gate
	s.saved <- device.ID
	return nil
}

func (s *gatedStore) DeleteDevice(id uuid.UUID) error {
	return nil
}

func TestSlowStoreDoesNotBlockRegistry(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	go bus.Start()
	t.Cleanup(bus.Stop)

	store := &gatedStore{
		gate:  make(chan struct{}),
		saved: make(chan uuid.UUID, 16),
	}
	r := New(bus, store, zap.NewNop())

	done := make(chan uuid.UUID, 1)
	errs := make(chan error, 1)
	go func() {
		id, err := r.Register(&model.Device{
			Name:      "Front Counter Printer",
			Kind:      model.DeviceKindPrinter,
			Transport: model.TransportUSB,
			Enabled:   true,
		})
		if err != nil {
			errs <- err
			return
		}
		done <- id
	}()

	var id uuid.UUID
	select {
	case id = <-done:
	case err := <-errs:
		t.Fatalf("Register failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Register blocked on a stalled store")
	}

	// Reads and further mutations must complete while the store is stuck.
	if err := r.UpdateStatus(id, model.DeviceStatusConnecting, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	device, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if device.Status != model.DeviceStatusConnecting {
		t.Errorf("status = %s, want CONNECTING", device.Status)
	}

	close(store.gate)

	// Both writes drain in order once the store recovers.
	for i := 0; i < 2; i++ {
		select {
		case saved := <-store.saved:
			if saved != id {
				t.Errorf("save %d persisted id %s, want %s", i, saved, id)
			}
		case <-time.After(time.Second):
			t.Fatalf("save %d never reached the store", i)
		}
	}
}
