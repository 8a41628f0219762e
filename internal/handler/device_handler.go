// internal/handler/device_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/config"
	"hardware-service/internal/driver"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/internal/render"
	"hardware-service/internal/transport"
	"hardware-service/internal/utils"
)

// DeviceHandler handles device inventory HTTP requests.
type DeviceHandler struct {
	registry   *registry.Registry
	printers   *driver.PrinterDriver
	printerCfg *config.PrinterConfig
	logger     *zap.Logger
}

// NewDeviceHandler creates a device handler. printerCfg supplies the profile
// defaults for printers registered without one; nil falls back to the
// built-in defaults.
func NewDeviceHandler(reg *registry.Registry, printers *driver.PrinterDriver, printerCfg *config.PrinterConfig, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		registry:   reg,
		printers:   printers,
		printerCfg: printerCfg,
		logger:     logger.With(zap.String("handler", "device")),
	}
}

// defaultProfile builds the profile for printers registered without one,
// overlaying the configured defaults.
func (h *DeviceHandler) defaultProfile() model.PrinterProfile {
	profile := model.DefaultPrinterProfile()
	if h.printerCfg == nil {
		return profile
	}
	if w := h.printerCfg.PaperWidth; w == 58 || w == 80 {
		profile.PaperWidth = w
		profile.CharsPerLine = render.WidthForPaper(w)
	}
	if h.printerCfg.Copies > 0 {
		profile.Copies = h.printerCfg.Copies
	}
	profile.AutoOpenDrawer = h.printerCfg.AutoOpenDrawer
	return profile
}

// RegisterDeviceRequest is the payload for device registration.
type RegisterDeviceRequest struct {
	Name            string                `json:"name" binding:"required"`
	Kind            model.DeviceKind      `json:"kind" binding:"required"`
	Transport       model.TransportKind   `json:"transport" binding:"required"`
	TransportConfig model.JSONObject      `json:"transport_config"`
	Profile         *model.PrinterProfile `json:"profile,omitempty"`
}

// RegisterDevice registers a new peripheral.
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := transport.ValidateConfig(req.Transport, req.TransportConfig); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid transport config", err)
		return
	}

	device := &model.Device{
		Name:            req.Name,
		Kind:            req.Kind,
		Transport:       req.Transport,
		TransportConfig: req.TransportConfig,
		Enabled:         true,
	}

	var id uuid.UUID
	var err error
	if req.Kind == model.DeviceKindPrinter {
		profile := h.defaultProfile()
		if req.Profile != nil {
			profile = *req.Profile
		}
		id, err = h.printers.RegisterPrinter(device, profile)
	} else {
		id, err = h.registry.Register(device)
	}
	if err != nil {
		h.logger.Error("Failed to register device", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to register device", err)
		return
	}

	registered, err := h.registry.Get(id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load registered device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Device registered successfully", registered)
}

// ListDevices lists registered devices, optionally filtered by kind.
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	var devices []*model.Device
	if kind := c.Query("kind"); kind != "" {
		devices = h.registry.ListByKind(model.DeviceKind(kind))
	} else {
		devices = h.registry.List()
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GetDevice returns a single device.
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	device, err := h.registry.Get(id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

// DeleteDevice removes a device from the inventory.
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	if err := h.registry.Remove(id); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device deleted successfully", nil)
}

// EnableDevice re-enables a disabled device.
func (h *DeviceHandler) EnableDevice(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableDevice disables a device; all further operations are rejected until
// it is enabled again.
func (h *DeviceHandler) DisableDevice(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *DeviceHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	if err := h.registry.SetEnabled(id, enabled); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
		return
	}

	device, _ := h.registry.Get(id)
	message := "Device disabled"
	if enabled {
		message = "Device enabled"
	}
	utils.SuccessResponse(c, http.StatusOK, message, device)
}

// TestDevice runs a connection test against the device.
func (h *DeviceHandler) TestDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	if err := h.printers.TestConnection(c.Request.Context(), id); err != nil {
		h.respondOperationError(c, "Connection test failed", err)
		return
	}

	device, _ := h.registry.Get(id)
	utils.SuccessResponse(c, http.StatusOK, "Device is reachable", device)
}

// DisconnectDevice drops the device connection.
func (h *DeviceHandler) DisconnectDevice(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	if err := h.printers.Disconnect(id); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", nil)
}

// deviceID parses the path parameter, replying 400 on garbage.
func (h *DeviceHandler) deviceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device id", err)
		return uuid.Nil, false
	}
	return id, true
}

// respondOperationError maps driver errors onto HTTP statuses.
func (h *DeviceHandler) respondOperationError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, model.ErrDeviceNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
	case errors.Is(err, model.ErrDeviceDisabled):
		utils.ErrorResponse(c, http.StatusConflict, message, err)
	default:
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	}
}
