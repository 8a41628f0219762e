// internal/driver/payment_test.go
package driver

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hardware-service/internal/model"
	"hardware-service/pkg/codes"
)

func TestProcessPaymentApproved(t *testing.T) {
	h := newHarness(t)
	h.spy.QueueRead([]byte("APPROVED|A93021\n"))
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	id, err := h.registry.Register(&model.Device{
		Name:      "Terminal 1",
		Kind:      model.DeviceKindPaymentTerminal,
		Transport: model.TransportSerial,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tx, err := d.ProcessPayment(context.Background(), id, decimal.RequireFromString("1250.00"), "4532015112830366")
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if tx.Status != model.TransactionApproved {
		t.Errorf("status = %s, want APPROVED", tx.Status)
	}
	if tx.AuthCode != "A93021" {
		t.Errorf("auth code = %q", tx.AuthCode)
	}
	if tx.CardType != codes.BrandVisa {
		t.Errorf("card type = %s, want VISA", tx.CardType)
	}
	if tx.Last4 != "0366" {
		t.Errorf("last4 = %q", tx.Last4)
	}
	if tx.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// The full PAN must never reach the wire.
	for _, w := range h.spy.Writes() {
		if bytes.Contains(w, []byte("4532015112830366")) {
			t.Error("card number leaked to transport")
		}
	}
}

func TestProcessPaymentDeclined(t *testing.T) {
	h := newHarness(t)
	h.spy.QueueRead([]byte("DECLINED|insufficient funds\n"))
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	events, sub := h.bus.Subscribe(model.EventPaymentDeclined)
	defer h.bus.Unsubscribe(sub)

	id, err := h.registry.Register(&model.Device{
		Name:      "Terminal 1",
		Kind:      model.DeviceKindPaymentTerminal,
		Transport: model.TransportSerial,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tx, err := d.ProcessPayment(context.Background(), id, decimal.NewFromInt(500), "4532015112830366")
	var declined *model.PaymentDeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("ProcessPayment() error = %v, want PaymentDeclinedError", err)
	}
	if declined.Reason != "insufficient funds" {
		t.Errorf("reason = %q", declined.Reason)
	}
	if tx.Status != model.TransactionDeclined {
		t.Errorf("status = %s, want DECLINED", tx.Status)
	}

	select {
	case ev := <-events:
		if ev.Error != "insufficient funds" {
			t.Errorf("event error = %q", ev.Error)
		}
	case <-time.After(time.Second):
		t.Error("PAYMENT_DECLINED never published")
	}
}

func TestProcessPaymentInvalidCard(t *testing.T) {
	h := newHarness(t)
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	id, err := h.registry.Register(&model.Device{
		Name:      "Terminal 1",
		Kind:      model.DeviceKindPaymentTerminal,
		Transport: model.TransportSerial,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err = d.ProcessPayment(context.Background(), id, decimal.NewFromInt(100), "4532015112830367")
	var encErr *model.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("ProcessPayment() error = %v, want EncodingError", err)
	}
	if h.spy.WriteCount() != 0 {
		t.Errorf("transport saw %d writes for invalid card, want 0", h.spy.WriteCount())
	}
}

func TestProcessPaymentNonPositiveAmount(t *testing.T) {
	h := newHarness(t)
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
		if _, err := d.ProcessPayment(context.Background(), uuid.Nil, amount, "4532015112830366"); err == nil {
			t.Errorf("amount %s accepted", amount)
		}
	}
}

func TestRefundNegatesAmount(t *testing.T) {
	h := newHarness(t)
	h.spy.QueueRead([]byte("APPROVED|R00125\n"))
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	id, err := h.registry.Register(&model.Device{
		Name:      "Terminal 1",
		Kind:      model.DeviceKindPaymentTerminal,
		Transport: model.TransportSerial,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tx, err := d.RefundPayment(context.Background(), id, decimal.RequireFromString("750.50"), "5200828282828210")
	if err != nil {
		t.Fatalf("RefundPayment() error = %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-750.50")) {
		t.Errorf("amount = %s, want -750.50", tx.Amount)
	}
	if tx.Status != model.TransactionApproved {
		t.Errorf("status = %s, want APPROVED", tx.Status)
	}
	if tx.CardType != codes.BrandMastercard {
		t.Errorf("card type = %s, want MASTERCARD", tx.CardType)
	}
}

func TestNFCPaymentTakesCardFromTerminal(t *testing.T) {
	h := newHarness(t)
	h.spy.QueueRead([]byte("APPROVED|A55001|AMEX|0005\n"))
	d := NewPaymentDriver(h.registry, h.bus, h.factory, zap.NewNop())

	id, err := h.registry.Register(&model.Device{
		Name:      "Terminal 1",
		Kind:      model.DeviceKindPaymentTerminal,
		Transport: model.TransportSerial,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tx, err := d.ProcessNFCPayment(context.Background(), id, decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("ProcessNFCPayment() error = %v", err)
	}
	if tx.CardType != codes.BrandAmex || tx.Last4 != "0005" {
		t.Errorf("card = %s/%s, want AMEX/0005", tx.CardType, tx.Last4)
	}
}
