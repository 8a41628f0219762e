// internal/driver/printer.go
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/encoder"
	"hardware-service/internal/event"
	"hardware-service/internal/model"
	"hardware-service/internal/queue"
	"hardware-service/internal/registry"
	"hardware-service/internal/render"
	"hardware-service/internal/utils"
)

// RasterRenderer turns a laid-out document into printer raster commands.
// The browser-backed rasterizer satisfies this.
type RasterRenderer interface {
	PrintRaster(ctx context.Context, doc *render.Document) ([]byte, error)
}

// PrinterDriver manages receipt printers: registration, receipt rendering
// and the per-printer job queue.
type PrinterDriver struct {
	registry       *registry.Registry
	bus            *event.Bus
	queue          *queue.Manager
	conns          *connections
	raster         RasterRenderer
	logger         *zap.Logger
	opTimeout      time.Duration
	connectTimeout time.Duration
}

// PrinterOption adjusts driver timeouts.
type PrinterOption func(*PrinterDriver)

// WithPrinterTimeouts overrides the operation and connect timeouts.
func WithPrinterTimeouts(operation, connect time.Duration) PrinterOption {
	return func(d *PrinterDriver) {
		if operation > 0 {
			d.opTimeout = operation
		}
		if connect > 0 {
			d.connectTimeout = connect
		}
	}
}

// WithRasterRenderer enables the raster print target.
func WithRasterRenderer(r RasterRenderer) PrinterOption {
	return func(d *PrinterDriver) {
		d.raster = r
	}
}

// NewPrinterDriver creates the printer driver with its own job queue.
func NewPrinterDriver(reg *registry.Registry, bus *event.Bus, factory TransportFactory, logger *zap.Logger, opts ...PrinterOption) *PrinterDriver {
	d := &PrinterDriver{
		registry:       reg,
		bus:            bus,
		conns:          newConnections(factory, logger),
		logger:         logger.With(zap.String("driver", "printer")),
		opTimeout:      30 * time.Second,
		connectTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = queue.NewManager(reg, bus, d.execute, logger)
	return d
}

// Queue exposes the job queue for status queries and drain control.
func (d *PrinterDriver) Queue() *queue.Manager {
	return d.queue
}

// RegisterPrinter registers a printer with its profile and returns the
// assigned device id.
func (d *PrinterDriver) RegisterPrinter(device *model.Device, profile model.PrinterProfile) (uuid.UUID, error) {
	device.Kind = model.DeviceKindPrinter
	device.Enabled = true
	device.Profile = profile.AsJSON()
	return d.registry.Register(device)
}

// layoutReceipt produces the laid-out document for the device, defaulting
// the template from the printer profile and overlaying its branding.
func (d *PrinterDriver) layoutReceipt(device *model.Device, tmpl *model.ReceiptTemplate, data *model.ReceiptData) (*render.Document, model.PrinterProfile, error) {
	profile := model.PrinterProfileFrom(device.Profile)
	if tmpl == nil {
		tmpl = model.DefaultReceiptTemplate()
		tmpl.PaperWidth = profile.PaperWidth
	}

	doc, err := render.Layout(tmpl, data)
	if err != nil {
		return nil, profile, err
	}
	render.ApplyBranding(doc, profile)
	return doc, profile, nil
}

// RenderDocument lays out a receipt for the device without printing it.
func (d *PrinterDriver) RenderDocument(deviceID uuid.UUID, tmpl *model.ReceiptTemplate, data *model.ReceiptData) (*render.Document, error) {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPrinter)
	if err != nil {
		return nil, err
	}
	doc, _, err := d.layoutReceipt(device, tmpl, data)
	return doc, err
}

// PrintReceipt renders the receipt, encodes it for the printer and runs it
// through the device queue, blocking until the job reaches a terminal state.
func (d *PrinterDriver) PrintReceipt(ctx context.Context, deviceID uuid.UUID, tmpl *model.ReceiptTemplate, data *model.ReceiptData) (*model.PrintJob, error) {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPrinter)
	if err != nil {
		return nil, err
	}

	doc, profile, err := d.layoutReceipt(device, tmpl, data)
	if err != nil {
		return nil, err
	}
	payload, err := encoder.EncodeReceipt(doc, profile)
	if err != nil {
		return nil, err
	}

	if !device.IsConnected() {
		if _, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout); err != nil {
			return nil, err
		}
	}

	return d.submit(ctx, deviceID, payload)
}

// PrintReceiptRaster renders the receipt through the raster target instead
// of the character pipeline. Printers with no usable code page for the
// receipt's text take this path.
func (d *PrinterDriver) PrintReceiptRaster(ctx context.Context, deviceID uuid.UUID, tmpl *model.ReceiptTemplate, data *model.ReceiptData) (*model.PrintJob, error) {
	if d.raster == nil {
		return nil, &model.EncodingError{Reason: "raster target is not configured"}
	}

	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPrinter)
	if err != nil {
		return nil, err
	}

	doc, _, err := d.layoutReceipt(device, tmpl, data)
	if err != nil {
		return nil, err
	}
	raster, err := d.raster.PrintRaster(ctx, doc)
	if err != nil {
		return nil, err
	}
	payload, err := encoder.EncodeRaster(raster)
	if err != nil {
		return nil, err
	}

	if !device.IsConnected() {
		if _, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout); err != nil {
			return nil, err
		}
	}

	return d.submit(ctx, deviceID, payload)
}

// PrintRaw queues pre-encoded printer commands. The drawer driver routes
// kick pulses through here so they serialize with receipts.
func (d *PrinterDriver) PrintRaw(ctx context.Context, deviceID uuid.UUID, payload []byte) (*model.PrintJob, error) {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPrinter)
	if err != nil {
		return nil, err
	}

	if !device.IsConnected() {
		if _, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout); err != nil {
			return nil, err
		}
	}

	return d.submit(ctx, deviceID, payload)
}

func (d *PrinterDriver) submit(ctx context.Context, deviceID uuid.UUID, payload []byte) (*model.PrintJob, error) {
	job, err := d.queue.Enqueue(deviceID, payload)
	if err != nil {
		return nil, err
	}

	final, err := d.queue.Wait(ctx, job.ID)
	if err != nil {
		return job, err
	}
	if final.Status == model.JobStatusFailed {
		msg := "print job failed"
		if final.Error != nil {
			msg = *final.Error
		}
		return final, errors.New(msg)
	}
	return final, nil
}

// TestConnection opens the printer's transport if needed and sends a status
// request.
func (d *PrinterDriver) TestConnection(ctx context.Context, deviceID uuid.UUID) error {
	device, err := resolveDevice(d.registry, deviceID, model.DeviceKindPrinter)
	if err != nil {
		return err
	}

	tr, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	// DLE EOT 1: transmit printer status.
	if err := tr.Write(pingCtx, []byte{0x10, 0x04, 0x01}); err != nil {
		d.registry.UpdateStatus(deviceID, model.DeviceStatusError, err.Error())
		return err
	}
	return nil
}

// Disconnect closes the printer's transport and marks it DISCONNECTED.
func (d *PrinterDriver) Disconnect(deviceID uuid.UUID) error {
	d.conns.drop(deviceID)
	return d.registry.UpdateStatus(deviceID, model.DeviceStatusDisconnected, "")
}

// Stop drains resources on shutdown.
func (d *PrinterDriver) Stop() {
	d.queue.Close()
	d.conns.closeAll()
}

// execute is the queue executor: it pushes one job's payload down the
// device's transport.
func (d *PrinterDriver) execute(ctx context.Context, job *model.PrintJob) error {
	device, err := d.registry.Get(job.DeviceID)
	if err != nil {
		return err
	}
	if !device.Enabled {
		return model.ErrDeviceDisabled
	}

	tr, err := ensureConnected(ctx, d.registry, d.conns, device, d.connectTimeout)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	dlog := utils.NewDeviceLogger(d.logger, device.ID.String(), string(device.Kind))
	start := time.Now()
	err = tr.Write(writeCtx, job.Payload)
	dlog.LogOperation("PRINT", job.ID.String(), time.Since(start), err)
	if err != nil {
		d.registry.UpdateStatus(job.DeviceID, model.DeviceStatusError, err.Error())
		return err
	}
	return nil
}
