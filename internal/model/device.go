// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceKind represents the kind of peripheral
type DeviceKind string

const (
	DeviceKindPrinter         DeviceKind = "PRINTER"
	DeviceKindScanner         DeviceKind = "SCANNER"
	DeviceKindCashDrawer      DeviceKind = "CASH_DRAWER"
	DeviceKindPaymentTerminal DeviceKind = "PAYMENT_TERMINAL"
	DeviceKindCustomerDisplay DeviceKind = "CUSTOMER_DISPLAY"
	DeviceKindWeightScale     DeviceKind = "WEIGHT_SCALE"
)

// DeviceStatus represents the current connection status of a device
type DeviceStatus string

const (
	DeviceStatusDisconnected DeviceStatus = "DISCONNECTED"
	DeviceStatusConnecting   DeviceStatus = "CONNECTING"
	DeviceStatusConnected    DeviceStatus = "CONNECTED"
	DeviceStatusError        DeviceStatus = "ERROR"
)

// TransportKind represents how a device is physically attached
type TransportKind string

const (
	TransportUSB           TransportKind = "USB"
	TransportSerial        TransportKind = "SERIAL"
	TransportBluetooth     TransportKind = "BLUETOOTH"
	TransportNetwork       TransportKind = "NETWORK"
	TransportKeyboardWedge TransportKind = "KEYBOARD_WEDGE"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Device represents a registered peripheral. The registry owns all mutations;
// status moves only through the connection state machine, and the operation
// counters only grow.
type Device struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	Name            string        `json:"name" db:"name"`
	Kind            DeviceKind    `json:"kind" db:"kind"`
	Transport       TransportKind `json:"transport" db:"transport"`
	TransportConfig JSONObject    `json:"transport_config" db:"transport_config"`
	Status          DeviceStatus  `json:"status" db:"status"`
	Enabled         bool          `json:"enabled" db:"enabled"`
	LastConnectedAt *time.Time    `json:"last_connected_at" db:"last_connected_at"`
	LastError       *string       `json:"last_error" db:"last_error"`
	OperationCount  uint64        `json:"operation_count" db:"operation_count"`
	ErrorCount      uint64        `json:"error_count" db:"error_count"`
	Profile         JSONObject    `json:"profile" db:"profile"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsConnected reports whether the device currently has a live connection.
func (d *Device) IsConnected() bool {
	return d.Status == DeviceStatusConnected
}

// PrinterProfile holds printer-specific settings. Owned by the printer driver;
// stored on the device as its Profile document.
type PrinterProfile struct {
	PaperWidth     int    `json:"paper_width"` // 58 or 80 mm
	CharsPerLine   int    `json:"chars_per_line"`
	DPI            int    `json:"dpi"`
	AutoOpenDrawer bool   `json:"auto_open_drawer"`
	Copies         int    `json:"copies"`
	HeaderText     string `json:"header_text,omitempty"`
	FooterText     string `json:"footer_text,omitempty"`
	LogoEnabled    bool   `json:"logo_enabled"`
}

// DefaultPrinterProfile returns an 80mm profile with sane defaults.
func DefaultPrinterProfile() PrinterProfile {
	return PrinterProfile{
		PaperWidth:   80,
		CharsPerLine: 48,
		DPI:          203,
		Copies:       1,
	}
}

// CharacterWidth returns the characters-per-line for the paper width,
// honoring an explicit CharsPerLine override.
func (p PrinterProfile) CharacterWidth() int {
	if p.CharsPerLine > 0 {
		return p.CharsPerLine
	}
	if p.PaperWidth == 58 {
		return 32
	}
	return 48
}

// AsJSON converts the profile into the device's stored profile document.
func (p PrinterProfile) AsJSON() JSONObject {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var obj JSONObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// PrinterProfileFrom decodes a stored profile document, falling back to the
// defaults for missing or malformed fields.
func PrinterProfileFrom(obj JSONObject) PrinterProfile {
	profile := DefaultPrinterProfile()
	if obj == nil {
		return profile
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return profile
	}
	json.Unmarshal(raw, &profile)
	if profile.PaperWidth != 58 && profile.PaperWidth != 80 {
		profile.PaperWidth = 80
	}
	if profile.Copies < 1 {
		profile.Copies = 1
	}
	return profile
}

// Transport configuration shapes for the supported attachment types.

type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

type USBConfig struct {
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Interface int    `json:"interface"`
}

type NetworkConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type BluetoothConfig struct {
	MACAddress string `json:"mac_address"`
	PIN        string `json:"pin,omitempty"`
}
