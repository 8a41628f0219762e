// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hardware-service/pkg/codes"
)

// JobStatus represents the lifecycle state of a print job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusPrinting  JobStatus = "PRINTING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// PrintJob is one unit of work on a device queue. The payload is immutable
// once set and transitions are one-directional.
type PrintJob struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	DeviceID    uuid.UUID  `json:"device_id" db:"device_id"`
	Payload     []byte     `json:"-" db:"payload"`
	Status      JobStatus  `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	Error       *string    `json:"error,omitempty" db:"error"`
}

// IsTerminal reports whether the job reached a final state.
func (j *PrintJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// TransactionStatus represents the lifecycle state of a payment transaction
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionApproved TransactionStatus = "APPROVED"
	TransactionDeclined TransactionStatus = "DECLINED"
	TransactionError    TransactionStatus = "ERROR"
)

// PaymentTransaction is created PENDING and transitions exactly once to a
// terminal status.
type PaymentTransaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	DeviceID    uuid.UUID         `json:"device_id" db:"device_id"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Currency    string            `json:"currency" db:"currency"`
	Status      TransactionStatus `json:"status" db:"status"`
	CardType    codes.CardBrand   `json:"card_type,omitempty" db:"card_type"`
	Last4       string            `json:"last4,omitempty" db:"last4"`
	AuthCode    string            `json:"auth_code,omitempty" db:"auth_code"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	CompletedAt *time.Time        `json:"completed_at" db:"completed_at"`
}

// ScanResult is produced by the scanner driver and never mutated afterwards.
type ScanResult struct {
	Code      string              `json:"code"`
	Format    codes.BarcodeFormat `json:"format"`
	Timestamp time.Time           `json:"timestamp"`
	DeviceID  uuid.UUID           `json:"device_id"`
}
