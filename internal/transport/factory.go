// internal/transport/factory.go
package transport

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// New builds the transport for a device from its stored transport config.
// Keyboard-wedge scanners deliver input through the host's input stream and
// have no byte channel of their own.
func New(kind model.TransportKind, config model.JSONObject, logger *zap.Logger) (Transport, error) {
	switch kind {
	case model.TransportSerial:
		return newSerial(config, logger)
	case model.TransportUSB:
		return newUSB(config, logger)
	case model.TransportNetwork:
		return newTCP(config, logger)
	case model.TransportBluetooth:
		return nil, fmt.Errorf("bluetooth transport not implemented")
	case model.TransportKeyboardWedge:
		return nil, fmt.Errorf("keyboard wedge devices have no transport")
	default:
		return nil, fmt.Errorf("unsupported transport kind: %s", kind)
	}
}

func newSerial(config model.JSONObject, logger *zap.Logger) (Transport, error) {
	sc := model.SerialConfig{
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}

	port, ok := config["port"].(string)
	if !ok || port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	sc.Port = port

	if v, ok := intValue(config["baud_rate"]); ok {
		sc.BaudRate = v
	}
	if v, ok := intValue(config["data_bits"]); ok {
		sc.DataBits = v
	}
	if v, ok := intValue(config["stop_bits"]); ok {
		sc.StopBits = v
	}
	if parity, ok := config["parity"].(string); ok {
		sc.Parity = parity
	}

	timeout := parseTimeout(config, 5*time.Second)

	logger.Info("Creating serial transport",
		zap.String("port", sc.Port),
		zap.Int("baud_rate", sc.BaudRate),
	)
	return NewSerialTransport(sc, timeout, logger), nil
}

func newUSB(config model.JSONObject, logger *zap.Logger) (Transport, error) {
	uc := model.USBConfig{}

	vendorID, ok := config["vendor_id"].(string)
	if !ok || vendorID == "" {
		return nil, fmt.Errorf("USB vendor_id is required")
	}
	uc.VendorID = vendorID

	productID, ok := config["product_id"].(string)
	if !ok || productID == "" {
		return nil, fmt.Errorf("USB product_id is required")
	}
	uc.ProductID = productID

	if v, ok := intValue(config["interface"]); ok {
		uc.Interface = v
	}

	logger.Info("Creating USB transport",
		zap.String("vendor_id", uc.VendorID),
		zap.String("product_id", uc.ProductID),
	)
	return NewUSBTransport(uc, logger), nil
}

func newTCP(config model.JSONObject, logger *zap.Logger) (Transport, error) {
	nc := model.NetworkConfig{Port: DefaultRawPort}

	host, ok := config["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("network host is required")
	}
	nc.Host = host

	if v, ok := intValue(config["port"]); ok {
		nc.Port = v
	}

	timeout := parseTimeout(config, 30*time.Second)

	logger.Info("Creating TCP transport",
		zap.String("host", nc.Host),
		zap.Int("port", nc.Port),
	)
	return NewTCPTransport(nc, timeout, logger), nil
}

// ValidateConfig checks a transport config without building a transport.
func ValidateConfig(kind model.TransportKind, config model.JSONObject) error {
	switch kind {
	case model.TransportSerial:
		if _, ok := config["port"].(string); !ok {
			return fmt.Errorf("serial port is required")
		}
		if rate, ok := intValue(config["baud_rate"]); ok && !validBaudRate(rate) {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
		return nil
	case model.TransportUSB:
		if _, ok := config["vendor_id"].(string); !ok {
			return fmt.Errorf("USB vendor_id is required")
		}
		if _, ok := config["product_id"].(string); !ok {
			return fmt.Errorf("USB product_id is required")
		}
		return nil
	case model.TransportNetwork:
		if _, ok := config["host"].(string); !ok {
			return fmt.Errorf("network host is required")
		}
		if port, ok := intValue(config["port"]); ok && (port < 1 || port > 65535) {
			return fmt.Errorf("invalid port number: %d", port)
		}
		return nil
	case model.TransportKeyboardWedge:
		return nil
	case model.TransportBluetooth:
		if _, ok := config["mac_address"].(string); !ok {
			return fmt.Errorf("bluetooth mac_address is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported transport kind: %s", kind)
	}
}

func validBaudRate(rate int) bool {
	switch rate {
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		return true
	}
	return false
}

// intValue reads an int from a decoded JSON value, which arrives as float64
// after a round trip through the database or API.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func parseTimeout(config model.JSONObject, fallback time.Duration) time.Duration {
	if s, ok := config["timeout"].(string); ok {
		if dur, err := time.ParseDuration(s); err == nil {
			return dur
		}
	}
	return fallback
}
