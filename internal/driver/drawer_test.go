// internal/driver/drawer_test.go
package driver

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"hardware-service/internal/encoder"
	"hardware-service/internal/model"
)

func TestOpenDrawerDirectTransport(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop(),
		WithCloseDelay(30*time.Millisecond))

	events, sub := h.bus.Subscribe(model.EventDrawerOpened, model.EventDrawerClosed)
	defer h.bus.Unsubscribe(sub)

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 1",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"port": "/dev/ttyS0",
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := d.OpenDrawer(context.Background(), id, "CASH_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}

	writes := h.spy.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], encoder.DrawerKickPin2) {
		t.Errorf("writes = %v, want one pin-2 kick pulse", writes)
	}

	// DRAWER_OPENED then DRAWER_CLOSED, in that order, exactly once each.
	wantKinds := []model.EventKind{model.EventDrawerOpened, model.EventDrawerClosed}
	for i, want := range wantKinds {
		select {
		case ev := <-events:
			if ev.Kind != want {
				t.Errorf("event %d = %s, want %s", i, ev.Kind, want)
			}
			if want == model.EventDrawerOpened && ev.Data["reason"] != "CASH_SALE" {
				t.Errorf("open reason = %v", ev.Data["reason"])
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d (%s) never arrived", i, want)
		}
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected extra event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpenDrawerRoutedThroughPrinterQueue(t *testing.T) {
	h := newHarness(t)
	printers := NewPrinterDriver(h.registry, h.bus, h.factory, zap.NewNop())
	d := NewDrawerDriver(h.registry, h.bus, printers, h.factory, zap.NewNop(),
		WithCloseDelay(30*time.Millisecond))

	printerID, err := printers.RegisterPrinter(&model.Device{
		Name:      "Front Desk",
		Transport: model.TransportUSB,
	}, model.DefaultPrinterProfile())
	if err != nil {
		t.Fatalf("RegisterPrinter() error = %v", err)
	}

	drawerID, err := h.registry.Register(&model.Device{
		Name:      "Till 1",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportUSB,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"printer_id": printerID.String(),
			"drawer_pin": float64(5),
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.OpenDrawer(ctx, drawerID, "NO_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}

	// The pulse goes through the printer's queue, so the printer transport
	// carries it and the drawer device stays transportless.
	writes := h.spy.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], encoder.DrawerKickPin5) {
		t.Errorf("writes = %v, want one pin-5 kick via printer", writes)
	}

	printer, _ := h.registry.Get(printerID)
	if printer.OperationCount != 1 {
		t.Errorf("printer OperationCount = %d, want 1", printer.OperationCount)
	}
	drawer, _ := h.registry.Get(drawerID)
	if drawer.OperationCount != 1 {
		t.Errorf("drawer OperationCount = %d, want 1", drawer.OperationCount)
	}
}

func TestOpenDrawerDisabled(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop())

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 2",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err = d.OpenDrawer(context.Background(), id, "CASH_SALE")
	if !errors.Is(err, model.ErrDeviceDisabled) {
		t.Errorf("OpenDrawer() error = %v, want ErrDeviceDisabled", err)
	}
	if h.spy.WriteCount() != 0 {
		t.Errorf("transport saw %d writes, want 0", h.spy.WriteCount())
	}
}

func TestReopenBeforeCloseKeepsPairing(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop(),
		WithCloseDelay(200*time.Millisecond))

	events, sub := h.bus.Subscribe(model.EventDrawerOpened, model.EventDrawerClosed)
	defer h.bus.Unsubscribe(sub)

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 1",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"port": "/dev/ttyS0",
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := d.OpenDrawer(context.Background(), id, "CASH_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}
	if err := d.OpenDrawer(context.Background(), id, "CASH_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}

	// Two opens, two closes, every close preceded by its open.
	counts := map[model.EventKind]int{}
	openSeen := 0
	deadline := time.After(2 * time.Second)
	for total := 0; total < 4; {
		select {
		case ev := <-events:
			counts[ev.Kind]++
			if ev.Kind == model.EventDrawerOpened {
				openSeen++
			}
			if ev.Kind == model.EventDrawerClosed && openSeen < counts[model.EventDrawerClosed] {
				t.Error("close arrived before its open")
			}
			total++
		case <-deadline:
			t.Fatalf("saw %v before timeout", counts)
		}
	}
	if counts[model.EventDrawerOpened] != 2 || counts[model.EventDrawerClosed] != 2 {
		t.Errorf("event counts = %v, want 2 opens and 2 closes", counts)
	}
}

func TestOpenDrawerAppliesOpenDelay(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop(),
		WithOpenDelay(60*time.Millisecond))

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 1",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"port": "/dev/ttyS0",
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	start := time.Now()
	if err := d.OpenDrawer(context.Background(), id, "CASH_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("OpenDrawer returned after %v, want at least the 60ms delay", elapsed)
	}

	writes := h.spy.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], encoder.DrawerKickPin2) {
		t.Errorf("writes = %v, want one pin-2 kick pulse", writes)
	}
}

func TestOpenDrawerDeviceDelayOverridesDriverDelay(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop(),
		WithOpenDelay(5*time.Second))

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 2",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"port":          "/dev/ttyS1",
			"open_delay_ms": 10,
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	start := time.Now()
	if err := d.OpenDrawer(context.Background(), id, "NO_SALE"); err != nil {
		t.Fatalf("OpenDrawer() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("OpenDrawer took %v, device override should shorten the delay", elapsed)
	}
	if h.spy.WriteCount() != 1 {
		t.Errorf("write count = %d, want 1", h.spy.WriteCount())
	}
}

func TestOpenDrawerDelayHonorsContextCancel(t *testing.T) {
	h := newHarness(t)
	d := NewDrawerDriver(h.registry, h.bus, nil, h.factory, zap.NewNop(),
		WithOpenDelay(5*time.Second))

	id, err := h.registry.Register(&model.Device{
		Name:      "Till 3",
		Kind:      model.DeviceKindCashDrawer,
		Transport: model.TransportSerial,
		Enabled:   true,
		TransportConfig: model.JSONObject{
			"port": "/dev/ttyS2",
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = d.OpenDrawer(ctx, id, "CASH_SALE")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("OpenDrawer() error = %v, want deadline exceeded", err)
	}
	if h.spy.WriteCount() != 0 {
		t.Errorf("kick pulse reached the transport after cancellation, writes = %d", h.spy.WriteCount())
	}
}
