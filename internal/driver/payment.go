// internal/driver/payment.go
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/pkg/codes"
)

// Terminal wire protocol: one pipe-delimited request line per operation,
// one response line back. AUTH carries the masked card, NFC lets the
// terminal read the card itself.
//
//	-> AUTH|12.50|LKR|0366\n      <- APPROVED|A93021\n
//	-> NFC|12.50|LKR\n            <- APPROVED|A93021|VISA|0366\n
//	-> REFUND|-12.50|LKR|0366\n   <- DECLINED|insufficient funds\n

// TransactionStore persists the payment audit trail. Store failures are
// logged, never surfaced; the terminal's answer is the source of truth.
type TransactionStore interface {
	SaveTransaction(tx *model.PaymentTransaction) error
}

// PaymentDriver talks to card terminals. Every transaction starts PENDING
// and moves exactly once to APPROVED, DECLINED or ERROR.
type PaymentDriver struct {
	registry       *registry.Registry
	bus            *event.Bus
	conns          *connections
	store          TransactionStore
	logger         *zap.Logger
	currency       string
	opTimeout      time.Duration
	connectTimeout time.Duration
}

// PaymentOption adjusts driver behavior.
type PaymentOption func(*PaymentDriver)

// WithCurrency sets the currency code sent to the terminal.
func WithCurrency(currency string) PaymentOption {
	return func(d *PaymentDriver) {
		if currency != "" {
			d.currency = currency
		}
	}
}

// WithTransactionStore enables write-behind persistence of transactions.
func WithTransactionStore(store TransactionStore) PaymentOption {
	return func(d *PaymentDriver) { d.store = store }
}

// WithPaymentTimeout overrides the terminal response timeout.
func WithPaymentTimeout(timeout time.Duration) PaymentOption {
	return func(d *PaymentDriver) {
		if timeout > 0 {
			d.opTimeout = timeout
		}
	}
}

// NewPaymentDriver creates the payment terminal driver.
func NewPaymentDriver(reg *registry.Registry, bus *event.Bus, factory TransportFactory, logger *zap.Logger, opts ...PaymentOption) *PaymentDriver {
	d := &PaymentDriver{
		registry:       reg,
		bus:            bus,
		conns:          newConnections(factory, logger),
		logger:         logger.With(zap.String("driver", "payment")),
		currency:       "LKR",
		opTimeout:      60 * time.Second,
		connectTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessPayment authorizes a card payment for the given amount. The card
// number is validated and stripped to brand and last four before anything
// touches the wire; the full PAN is never stored or logged.
func (d *PaymentDriver) ProcessPayment(ctx context.Context, deviceID uuid.UUID, amount decimal.Decimal, cardNumber string) (*model.PaymentTransaction, error) {
	if !amount.IsPositive() {
		return nil, &model.EncodingError{Reason: "payment amount must be positive"}
	}
	if !codes.LuhnValid(cardNumber) {
		return nil, &model.EncodingError{Reason: "invalid card number"}
	}

	tx, err := d.newTransaction(deviceID, amount)
	if err != nil {
		return nil, err
	}
	tx.CardType = codes.DetectCardBrand(cardNumber)
	tx.Last4 = codes.Last4(cardNumber)

	request := fmt.Sprintf("AUTH|%s|%s|%s\n", amount.StringFixed(2), tx.Currency, tx.Last4)
	return d.roundTrip(ctx, deviceID, tx, request)
}

// ProcessNFCPayment authorizes a contactless payment; the terminal reads the
// card and reports brand and last four in its response.
func (d *PaymentDriver) ProcessNFCPayment(ctx context.Context, deviceID uuid.UUID, amount decimal.Decimal) (*model.PaymentTransaction, error) {
	if !amount.IsPositive() {
		return nil, &model.EncodingError{Reason: "payment amount must be positive"}
	}

	tx, err := d.newTransaction(deviceID, amount)
	if err != nil {
		return nil, err
	}

	request := fmt.Sprintf("NFC|%s|%s\n", amount.StringFixed(2), tx.Currency)
	return d.roundTrip(ctx, deviceID, tx, request)
}

// RefundPayment reverses a charge. The refund is recorded with a negated
// amount so transaction sums stay honest.
func (d *PaymentDriver) RefundPayment(ctx context.Context, deviceID uuid.UUID, amount decimal.Decimal, cardNumber string) (*model.PaymentTransaction, error) {
	if !amount.IsPositive() {
		return nil, &model.EncodingError{Reason: "refund amount must be positive"}
	}
	if !codes.LuhnValid(cardNumber) {
		return nil, &model.EncodingError{Reason: "invalid card number"}
	}

	tx, err := d.newTransaction(deviceID, amount.Neg())
	if err != nil {
		return nil, err
	}
	tx.CardType = codes.DetectCardBrand(cardNumber)
	tx.Last4 = codes.Last4(cardNumber)

	request := fmt.Sprintf("REFUND|%s|%s|%s\n", tx.Amount.StringFixed(2), tx.Currency, tx.Last4)
	return d.roundTrip(ctx, deviceID, tx, request)
}

func (d *PaymentDriver) newTransaction(deviceID uuid.UUID, amount decimal.Decimal) (*model.PaymentTransaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	tx := &model.PaymentTransaction{
		ID:        id,
		DeviceID:  deviceID,
		Amount:    amount,
		Currency:  d.currency,
		Status:    model.TransactionPending,
		CreatedAt: time.Now(),
	}
	d.persist(tx)
	return tx, nil
}

// persist writes the transaction through to the store, if one is configured.
func (d *PaymentDriver) persist(tx *model.PaymentTransaction) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveTransaction(tx); err != nil {
		d.logger.Warn("Failed to persist transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
	}
}

// roundTrip sends the request to the terminal and settles the transaction
// from its response.
func (d *PaymentDriver) roundTrip(ctx context.Context, deviceID uuid.UUID, tx *model.PaymentTransaction, request string) (*model.PaymentTransaction, error) {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPaymentTerminal)
	if err != nil {
		return nil, err
	}

	tr, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := tr.Write(opCtx, []byte(request)); err != nil {
		return d.settleError(deviceID, tx, err)
	}
	response, err := tr.Read(opCtx, 256)
	if err != nil {
		return d.settleError(deviceID, tx, err)
	}

	return d.settle(deviceID, tx, string(response))
}

func (d *PaymentDriver) settleError(deviceID uuid.UUID, tx *model.PaymentTransaction, err error) (*model.PaymentTransaction, error) {
	now := time.Now()
	tx.Status = model.TransactionError
	tx.CompletedAt = &now
	d.persist(tx)

	d.registry.UpdateStatus(deviceID, model.DeviceStatusError, err.Error())
	d.registry.RecordOperation(deviceID, false)
	d.logger.Error("Terminal communication failed",
		zap.String("transaction_id", tx.ID.String()),
		zap.Error(err),
	)
	return tx, err
}

func (d *PaymentDriver) settle(deviceID uuid.UUID, tx *model.PaymentTransaction, response string) (*model.PaymentTransaction, error) {
	now := time.Now()
	tx.CompletedAt = &now
	defer d.persist(tx)

	parts := strings.Split(strings.TrimSpace(response), "|")
	switch parts[0] {
	case "APPROVED":
		tx.Status = model.TransactionApproved
		if len(parts) > 1 {
			tx.AuthCode = parts[1]
		}
		if len(parts) > 3 {
			tx.CardType = codes.CardBrand(parts[2])
			tx.Last4 = parts[3]
		}

		d.registry.RecordOperation(deviceID, true)
		d.bus.Publish(model.NewEvent(model.EventPaymentApproved, deviceID, model.JSONObject{
			"transaction_id": tx.ID.String(),
			"amount":         tx.Amount.StringFixed(2),
			"auth_code":      tx.AuthCode,
		}))
		d.logger.Info("Payment approved",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("amount", tx.Amount.StringFixed(2)),
		)
		return tx, nil

	case "DECLINED":
		tx.Status = model.TransactionDeclined
		reason := "declined by terminal"
		if len(parts) > 1 {
			reason = parts[1]
		}

		d.registry.RecordOperation(deviceID, false)
		ev := model.NewEvent(model.EventPaymentDeclined, deviceID, model.JSONObject{
			"transaction_id": tx.ID.String(),
			"amount":         tx.Amount.StringFixed(2),
		})
		ev.Error = reason
		d.bus.Publish(ev)
		d.logger.Warn("Payment declined",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("reason", reason),
		)
		return tx, &model.PaymentDeclinedError{Reason: reason}

	default:
		tx.Status = model.TransactionError
		d.registry.RecordOperation(deviceID, false)
		err := fmt.Errorf("unrecognized terminal response: %q", response)
		d.logger.Error("Terminal protocol error",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return tx, err
	}
}

// Stop releases terminal transports.
func (d *PaymentDriver) Stop() {
	d.conns.closeAll()
}
