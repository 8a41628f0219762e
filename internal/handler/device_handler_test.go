// internal/handler/device_handler_test.go
package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hardware-service/internal/config"
	"hardware-service/internal/driver"
	"hardware-service/internal/event"
	"hardware-service/internal/handler"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/internal/render"
	"hardware-service/internal/routes"
	"hardware-service/internal/transport"
)

// stubRasterizer stands in for the browser renderer: fixed bytes, no Chrome.
type stubRasterizer struct{}

func (stubRasterizer) Screenshot(ctx context.Context, doc *render.Document) ([]byte, error) {
	return []byte("\x89PNG fake preview"), nil
}

func (stubRasterizer) PrintRaster(ctx context.Context, doc *render.Document) ([]byte, error) {
	return []byte("RASTER-PAYLOAD"), nil
}

type apiHarness struct {
	router   *gin.Engine
	registry *registry.Registry
	spy      *transport.SpyTransport
}

func newAPIHarness(t *testing.T) *apiHarness {
	return newAPIHarnessWithPrinterConfig(t, config.PrinterConfig{})
}

func newAPIHarnessWithPrinterConfig(t *testing.T, printerCfg config.PrinterConfig) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	bus := event.NewBus(logger)
	go bus.Start()
	t.Cleanup(bus.Stop)

	reg := registry.New(bus, nil, logger)
	spy := transport.NewSpyTransport()
	factory := func(device *model.Device, _ *zap.Logger) (transport.Transport, error) {
		return spy, nil
	}

	printers := driver.NewPrinterDriver(reg, bus, factory, logger,
		driver.WithRasterRenderer(stubRasterizer{}))
	t.Cleanup(printers.Stop)
	scanners := driver.NewScannerDriver(reg, bus, factory, logger)
	t.Cleanup(scanners.Stop)
	drawers := driver.NewDrawerDriver(reg, bus, printers, factory, logger)
	t.Cleanup(drawers.Stop)
	payments := driver.NewPaymentDriver(reg, bus, factory, logger)
	t.Cleanup(payments.Stop)

	cfg := &config.Config{
		App:     config.AppConfig{Name: "hardware-service", Version: "test", Environment: "development"},
		Printer: printerCfg,
	}

	router := routes.NewRouter(
		cfg, logger,
		handler.NewDeviceHandler(reg, printers, &cfg.Printer, logger),
		handler.NewOperationHandler(printers, scanners, drawers, payments, nil, stubRasterizer{}, logger),
		handler.NewHealthHandler(nil, reg, cfg, logger, printers),
		handler.NewWebSocketHandler(bus, logger),
	).SetupRouter()

	return &apiHarness{router: router, registry: reg, spy: spy}
}

func (h *apiHarness) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func (h *apiHarness) registerPrinter(t *testing.T) string {
	t.Helper()
	w, resp := h.do(t, http.MethodPost, "/api/v1/devices", gin.H{
		"name":      "Counter Printer",
		"kind":      "PRINTER",
		"transport": "NETWORK",
		"transport_config": gin.H{
			"host": "192.168.1.50",
			"port": 9100,
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register printer: status %d, body %s", w.Code, w.Body.String())
	}
	data := resp["data"].(map[string]interface{})
	return data["id"].(string)
}

func TestRegisterAndGetDevice(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	w, resp := h.do(t, http.MethodGet, "/api/v1/devices/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get device: status %d", w.Code)
	}
	data := resp["data"].(map[string]interface{})
	if data["status"] != "DISCONNECTED" {
		t.Errorf("new device status = %v, want DISCONNECTED", data["status"])
	}
	if data["enabled"] != true {
		t.Error("registered device should be enabled")
	}
}

func TestRegisterDeviceRejectsBadTransportConfig(t *testing.T) {
	h := newAPIHarness(t)

	w, _ := h.do(t, http.MethodPost, "/api/v1/devices", gin.H{
		"name":             "Bad Printer",
		"kind":             "PRINTER",
		"transport":        "NETWORK",
		"transport_config": gin.H{"port": 9100}, // no host
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetUnknownDeviceReturns404(t *testing.T) {
	h := newAPIHarness(t)

	w, _ := h.do(t, http.MethodGet, "/api/v1/devices/0195b2da-0000-7000-8000-000000000000", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDisableBlocksPrinting(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	if w, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/disable", id), nil); w.Code != http.StatusOK {
		t.Fatalf("disable: status %d", w.Code)
	}

	w, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print", id), gin.H{
		"data": gin.H{
			"business_name": "Corner Mart",
			"subtotal":      "100.00",
			"total":         "100.00",
		},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("print on disabled device: status = %d, want 409", w.Code)
	}
	if h.spy.WriteCount() != 0 {
		t.Errorf("disabled device reached the transport: %d writes", h.spy.WriteCount())
	}
}

func TestPrintReceiptEndToEnd(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	w, resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print", id), gin.H{
		"data": gin.H{
			"business_name":  "Corner Mart",
			"transaction_id": "TX-9001",
			"items": []gin.H{
				{"name": "Fresh Milk 1L", "quantity": 1, "unit_price": "450.00"},
			},
			"subtotal": "450.00",
			"total":    "450.00",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("print: status %d, body %s", w.Code, w.Body.String())
	}
	data := resp["data"].(map[string]interface{})
	if data["status"] != "COMPLETED" {
		t.Errorf("job status = %v, want COMPLETED", data["status"])
	}
	if h.spy.WriteCount() == 0 {
		t.Error("no bytes reached the transport")
	}
}

func TestHardwareStatusSummary(t *testing.T) {
	h := newAPIHarness(t)
	h.registerPrinter(t)
	h.registerPrinter(t)

	w, resp := h.do(t, http.MethodGet, "/api/v1/hardware/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hardware status: %d", w.Code)
	}
	data := resp["data"].(map[string]interface{})
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}
	byKind := data["by_kind"].(map[string]interface{})
	if byKind["PRINTER"] != float64(2) {
		t.Errorf("by_kind[PRINTER] = %v, want 2", byKind["PRINTER"])
	}
}

func TestPrintWithBrowserTarget(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	w, resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print", id), gin.H{
		"target": "browser",
		"data": gin.H{
			"business_name": "Corner Mart",
			"subtotal":      "100.00",
			"total":         "100.00",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("browser print: status %d, body %s", w.Code, w.Body.String())
	}
	data := resp["data"].(map[string]interface{})
	if data["status"] != "COMPLETED" {
		t.Errorf("job status = %v, want COMPLETED", data["status"])
	}

	var rasterSeen bool
	for _, write := range h.spy.Writes() {
		if bytes.Contains(write, []byte("RASTER-PAYLOAD")) {
			rasterSeen = true
		}
	}
	if !rasterSeen {
		t.Error("raster payload never reached the transport")
	}
}

func TestPrintUnknownTargetRejected(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	w, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print", id), gin.H{
		"target": "fax",
		"data": gin.H{
			"business_name": "Corner Mart",
			"subtotal":      "100.00",
			"total":         "100.00",
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPrintPreviewReturnsPNG(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	raw, err := json.Marshal(gin.H{
		"data": gin.H{
			"business_name": "Corner Mart",
			"subtotal":      "100.00",
			"total":         "100.00",
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print/preview", id), bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("preview: status %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not the rendered image")
	}
	if h.spy.WriteCount() != 0 {
		t.Errorf("preview touched the transport: %d writes", h.spy.WriteCount())
	}
}

func TestRegisterPrinterUsesConfiguredDefaults(t *testing.T) {
	h := newAPIHarnessWithPrinterConfig(t, config.PrinterConfig{
		PaperWidth: 58,
		Copies:     2,
	})
	id := h.registerPrinter(t)

	w, resp := h.do(t, http.MethodGet, "/api/v1/devices/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get device: status %d", w.Code)
	}
	data := resp["data"].(map[string]interface{})
	profile := data["profile"].(map[string]interface{})
	if profile["paper_width"] != float64(58) {
		t.Errorf("paper_width = %v, want 58", profile["paper_width"])
	}
	if profile["chars_per_line"] != float64(32) {
		t.Errorf("chars_per_line = %v, want 32", profile["chars_per_line"])
	}
	if profile["copies"] != float64(2) {
		t.Errorf("copies = %v, want 2", profile["copies"])
	}
}

func TestHardwareStatusReportsTransportIO(t *testing.T) {
	h := newAPIHarness(t)
	id := h.registerPrinter(t)

	w, _ := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/devices/%s/print", id), gin.H{
		"data": gin.H{
			"business_name": "Corner Mart",
			"subtotal":      "100.00",
			"total":         "100.00",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("print: status %d", w.Code)
	}

	w, resp := h.do(t, http.MethodGet, "/api/v1/hardware/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hardware status: %d", w.Code)
	}
	data := resp["data"].(map[string]interface{})
	io := data["io"].(map[string]interface{})
	entry, ok := io[id].(map[string]interface{})
	if !ok {
		t.Fatalf("io has no entry for %s: %v", id, io)
	}
	if entry["bytes_written"] == float64(0) {
		t.Error("bytes_written = 0 after a print")
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	w, resp := h.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if resp["success"] != true {
		t.Error("health response not successful")
	}
}
