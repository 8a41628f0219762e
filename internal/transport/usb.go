// internal/transport/usb.go
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// USBTransport drives USB peripherals through libusb bulk endpoints.
type USBTransport struct {
	config   model.USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	intf     *gousb.Interface
	intfDone func()
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	logger   *zap.Logger
	mutex    sync.RWMutex
	isOpen   bool
	stats    statsRecorder
}

// NewUSBTransport creates a USB transport for the given vendor/product pair.
func NewUSBTransport(config model.USBConfig, logger *zap.Logger) *USBTransport {
	return &USBTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "usb"),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
	}
}

func (ut *USBTransport) Open(ctx context.Context) error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if ut.isOpen {
		return nil
	}

	ut.logger.Info("Opening USB device", zap.Int("interface", ut.config.Interface))

	vendorID, err := parseHexID(ut.config.VendorID)
	if err != nil {
		return model.NewTransportError("open", fmt.Errorf("invalid vendor ID: %w", err))
	}
	productID, err := parseHexID(ut.config.ProductID)
	if err != nil {
		return model.NewTransportError("open", fmt.Errorf("invalid product ID: %w", err))
	}

	ut.ctx = gousb.NewContext()

	device, err := ut.findDevice(vendorID, productID)
	if err != nil {
		ut.ctx.Close()
		ut.ctx = nil
		return model.NewTransportError("open", err)
	}

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		ut.ctx.Close()
		ut.ctx = nil
		return model.NewTransportError("open", fmt.Errorf("failed to claim interface: %w", err))
	}

	outEndpt, err := intf.OutEndpoint(1)
	if err != nil {
		done()
		device.Close()
		ut.ctx.Close()
		ut.ctx = nil
		return model.NewTransportError("open", fmt.Errorf("no out endpoint: %w", err))
	}

	inEndpt, err := intf.InEndpoint(1)
	if err != nil {
		// Output-only devices (printers, drawers) have no in endpoint.
		ut.logger.Warn("No in endpoint found", zap.Error(err))
	}

	ut.device = device
	ut.intf = intf
	ut.intfDone = done
	ut.outEndpt = outEndpt
	ut.inEndpt = inEndpt
	ut.isOpen = true
	ut.stats.touch()

	ut.logger.Info("USB device opened")
	return nil
}

func (ut *USBTransport) Close() error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if !ut.isOpen {
		return nil
	}

	if ut.intfDone != nil {
		ut.intfDone()
		ut.intfDone = nil
	}
	if ut.intf != nil {
		ut.intf.Close()
		ut.intf = nil
	}
	if ut.device != nil {
		ut.device.Close()
		ut.device = nil
	}
	if ut.ctx != nil {
		ut.ctx.Close()
		ut.ctx = nil
	}

	ut.outEndpt = nil
	ut.inEndpt = nil
	ut.isOpen = false
	return nil
}

func (ut *USBTransport) IsOpen() bool {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()
	return ut.isOpen && ut.device != nil && ut.outEndpt != nil
}

func (ut *USBTransport) Write(ctx context.Context, data []byte) error {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()

	if !ut.isOpen || ut.outEndpt == nil {
		return model.NewTransportError("write", model.ErrDeviceNotConnected)
	}

	select {
	case <-ctx.Done():
		return model.NewTransportError("write", ctx.Err())
	default:
	}

	start := time.Now()
	n, err := ut.outEndpt.WriteContext(ctx, data)
	if err != nil {
		ut.stats.recordError()
		ut.logger.Error("USB write failed", zap.Error(err))
		return model.NewTransportError("write", err)
	}
	if n != len(data) {
		return model.NewTransportError("write", fmt.Errorf("incomplete write: %d of %d bytes", n, len(data)))
	}

	ut.stats.recordWrite(len(data), start)
	ut.logger.Debug("USB write completed", zap.Int("bytes", len(data)))
	return nil
}

func (ut *USBTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()

	if !ut.isOpen || ut.inEndpt == nil {
		return nil, model.NewTransportError("read", model.ErrDeviceNotConnected)
	}

	buffer := make([]byte, maxBytes)
	n, err := ut.inEndpt.ReadContext(ctx, buffer)
	if err != nil {
		ut.stats.recordError()
		return nil, model.NewTransportError("read", err)
	}

	data := make([]byte, n)
	copy(data, buffer[:n])
	ut.stats.recordRead(n)
	return data, nil
}

func (ut *USBTransport) Kind() model.TransportKind {
	return model.TransportUSB
}

func (ut *USBTransport) Stats() Stats {
	return ut.stats.snapshot()
}

// parseHexID accepts "0x1234" or "1234".
func parseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}

func (ut *USBTransport) findDevice(vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := ut.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("USB device not found (VID: %04X, PID: %04X)", uint16(vendorID), uint16(productID))
	}
	if len(devices) > 1 {
		for i := 1; i < len(devices); i++ {
			devices[i].Close()
		}
		ut.logger.Warn("Multiple matching USB devices found, using first one")
	}
	return devices[0], nil
}
