// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/config"
	"hardware-service/internal/database"
	"hardware-service/internal/model"
	"hardware-service/internal/registry"
	"hardware-service/internal/transport"
	"hardware-service/internal/utils"
)

// TransportStatsSource reports per-device transport counters. Every driver
// satisfies this for its cached connections.
type TransportStatsSource interface {
	TransportStats() map[uuid.UUID]transport.Stats
}

// HealthHandler serves liveness, readiness and hardware status endpoints.
type HealthHandler struct {
	db        *database.DB
	registry  *registry.Registry
	config    *config.Config
	stats     []TransportStatsSource
	logger    *zap.Logger
	startedAt time.Time
}

// NewHealthHandler creates a health handler. db may be nil when the store is
// disabled.
func NewHealthHandler(db *database.DB, reg *registry.Registry, cfg *config.Config, logger *zap.Logger, stats ...TransportStatsSource) *HealthHandler {
	return &HealthHandler{
		db:        db,
		registry:  reg,
		config:    cfg,
		stats:     stats,
		logger:    logger.With(zap.String("handler", "health")),
		startedAt: time.Now(),
	}
}

// HealthCheck reports overall service health.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Service is healthy", gin.H{
		"service": h.config.App.Name,
		"version": h.config.App.Version,
		"uptime":  time.Since(h.startedAt).String(),
	})
}

// DatabaseHealthCheck pings the device store.
func (h *HealthHandler) DatabaseHealthCheck(c *gin.Context) {
	if h.db == nil {
		utils.SuccessResponse(c, http.StatusOK, "Store disabled, running in memory", nil)
		return
	}
	if err := h.db.Ping(); err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Database is healthy", nil)
}

// LivenessCheck always succeeds while the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadinessCheck succeeds once dependencies are reachable.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// HardwareStatus summarizes every registered device.
func (h *HealthHandler) HardwareStatus(c *gin.Context) {
	devices := h.registry.List()

	byStatus := map[model.DeviceStatus]int{}
	byKind := map[model.DeviceKind]int{}
	for _, d := range devices {
		byStatus[d.Status]++
		byKind[d.Kind]++
	}

	io := map[string]transport.Stats{}
	for _, source := range h.stats {
		for id, s := range source.TransportStats() {
			io[id.String()] = s
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Hardware status retrieved", gin.H{
		"devices":   devices,
		"total":     len(devices),
		"by_status": byStatus,
		"by_kind":   byKind,
		"io":        io,
	})
}
