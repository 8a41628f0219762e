// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind represents the kind of hardware event
type EventKind string

const (
	EventDeviceConnected    EventKind = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventKind = "DEVICE_DISCONNECTED"
	EventDeviceError        EventKind = "DEVICE_ERROR"
	EventPrintComplete      EventKind = "PRINT_COMPLETE"
	EventPrintFailed        EventKind = "PRINT_FAILED"
	EventScanComplete       EventKind = "SCAN_COMPLETE"
	EventDrawerOpened       EventKind = "DRAWER_OPENED"
	EventDrawerClosed       EventKind = "DRAWER_CLOSED"
	EventPaymentApproved    EventKind = "PAYMENT_APPROVED"
	EventPaymentDeclined    EventKind = "PAYMENT_DECLINED"
)

// HardwareEvent is an immutable fact broadcast once over the event bus.
type HardwareEvent struct {
	Kind      EventKind  `json:"kind"`
	DeviceID  uuid.UUID  `json:"device_id"`
	Timestamp time.Time  `json:"timestamp"`
	Data      JSONObject `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// NewEvent builds a timestamped event.
func NewEvent(kind EventKind, deviceID uuid.UUID, data JSONObject) HardwareEvent {
	return HardwareEvent{
		Kind:      kind,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Data:      data,
	}
}
