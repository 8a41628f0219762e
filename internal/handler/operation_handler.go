// internal/handler/operation_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hardware-service/internal/driver"
	"hardware-service/internal/model"
	"hardware-service/internal/render"
	"hardware-service/internal/repository"
	"hardware-service/internal/utils"
)

// ReceiptPreviewer rasterizes a laid-out document to a PNG. The browser
// printer satisfies this; nil disables the preview route.
type ReceiptPreviewer interface {
	Screenshot(ctx context.Context, doc *render.Document) ([]byte, error)
}

// OperationHandler exposes device operations: printing, drawer kicks,
// payments and scan input.
type OperationHandler struct {
	printers     *driver.PrinterDriver
	scanners     *driver.ScannerDriver
	drawers      *driver.DrawerDriver
	payments     *driver.PaymentDriver
	transactions *repository.TransactionRepository
	previews     ReceiptPreviewer
	logger       *zap.Logger
}

// NewOperationHandler creates an operation handler. transactions and
// previews may be nil when the store or the browser target is disabled.
func NewOperationHandler(
	printers *driver.PrinterDriver,
	scanners *driver.ScannerDriver,
	drawers *driver.DrawerDriver,
	payments *driver.PaymentDriver,
	transactions *repository.TransactionRepository,
	previews ReceiptPreviewer,
	logger *zap.Logger,
) *OperationHandler {
	return &OperationHandler{
		printers:     printers,
		scanners:     scanners,
		drawers:      drawers,
		payments:     payments,
		transactions: transactions,
		previews:     previews,
		logger:       logger.With(zap.String("handler", "operation")),
	}
}

// PrintRequest is the payload for a receipt print. Target selects the output
// pipeline: character printing by default, raster via the browser renderer
// when set to "browser".
type PrintRequest struct {
	Template *model.ReceiptTemplate `json:"template,omitempty"`
	Data     *model.ReceiptData     `json:"data" binding:"required"`
	Target   string                 `json:"target,omitempty"`
}

// PrintReceipt renders and prints a receipt on the device.
func (h *OperationHandler) PrintReceipt(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var job *model.PrintJob
	var err error
	switch req.Target {
	case "", "text":
		job, err = h.printers.PrintReceipt(c.Request.Context(), id, req.Template, req.Data)
	case "browser":
		job, err = h.printers.PrintReceiptRaster(c.Request.Context(), id, req.Template, req.Data)
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown print target", errors.New(req.Target))
		return
	}
	if err != nil {
		h.respondOperationError(c, "Print failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Receipt printed", job)
}

// PrintPreview renders the receipt to a PNG without touching the printer.
func (h *OperationHandler) PrintPreview(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if h.previews == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Preview renderer disabled", nil)
		return
	}

	doc, err := h.printers.RenderDocument(id, req.Template, req.Data)
	if err != nil {
		h.respondOperationError(c, "Preview failed", err)
		return
	}

	png, err := h.previews.Screenshot(c.Request.Context(), doc)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Preview rendering failed", err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// RawPrintRequest carries a base64-encoded raw payload.
type RawPrintRequest struct {
	Data string `json:"data" binding:"required"`
}

// PrintRaw sends pre-encoded bytes straight to the printer.
func (h *OperationHandler) PrintRaw(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req RawPrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Payload must be base64", err)
		return
	}

	job, err := h.printers.PrintRaw(c.Request.Context(), id, payload)
	if err != nil {
		h.respondOperationError(c, "Print failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payload printed", job)
}

// ListJobs returns the device's print queue, newest state included.
func (h *OperationHandler) ListJobs(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	jobs := h.printers.Queue().Jobs(id)
	utils.SuccessResponse(c, http.StatusOK, "Jobs retrieved successfully", gin.H{
		"jobs":   jobs,
		"depth":  h.printers.Queue().Depth(id),
		"halted": h.printers.Queue().Halted(id),
	})
}

// GetJob returns one print job by id.
func (h *OperationHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid job id", err)
		return
	}

	job, ok := h.printers.Queue().Job(jobID)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Job not found", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Job retrieved successfully", job)
}

// ResumeQueue restarts a queue halted by a failed job. The failed job itself
// stays failed.
func (h *OperationHandler) ResumeQueue(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	h.printers.Queue().Resume(id)
	utils.SuccessResponse(c, http.StatusOK, "Queue resumed", gin.H{
		"depth":  h.printers.Queue().Depth(id),
		"halted": h.printers.Queue().Halted(id),
	})
}

// DrawerRequest carries the reason recorded with a drawer kick.
type DrawerRequest struct {
	Reason string `json:"reason"`
}

// OpenDrawer kicks the cash drawer open.
func (h *OperationHandler) OpenDrawer(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	// The body is optional
	var req DrawerRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "MANUAL"
	}

	if err := h.drawers.OpenDrawer(c.Request.Context(), id, req.Reason); err != nil {
		h.respondOperationError(c, "Drawer kick failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Drawer opened", nil)
}

// PaymentRequest is the payload for a card or contactless charge.
type PaymentRequest struct {
	Amount     string `json:"amount" binding:"required"`
	Method     string `json:"method"` // CARD or NFC, default CARD
	CardNumber string `json:"card_number,omitempty"`
}

// ProcessPayment authorizes a payment on the terminal.
func (h *OperationHandler) ProcessPayment(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	var tx *model.PaymentTransaction
	if req.Method == "NFC" {
		tx, err = h.payments.ProcessNFCPayment(c.Request.Context(), id, amount)
	} else {
		tx, err = h.payments.ProcessPayment(c.Request.Context(), id, amount, req.CardNumber)
	}
	h.respondTransaction(c, tx, err, "Payment approved")
}

// RefundRequest is the payload for a refund.
type RefundRequest struct {
	Amount     string `json:"amount" binding:"required"`
	CardNumber string `json:"card_number" binding:"required"`
}

// RefundPayment reverses a charge on the terminal.
func (h *OperationHandler) RefundPayment(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	tx, err := h.payments.RefundPayment(c.Request.Context(), id, amount, req.CardNumber)
	h.respondTransaction(c, tx, err, "Refund approved")
}

// ListTransactions returns the recent payment history for a terminal.
func (h *OperationHandler) ListTransactions(c *gin.Context) {
	if h.transactions == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Transaction store is disabled", nil)
		return
	}
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	txs, err := h.transactions.ListTransactions(c.Request.Context(), id, limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Transactions retrieved successfully", gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ScanInputRequest carries keyboard-wedge input characters.
type ScanInputRequest struct {
	Input string `json:"input" binding:"required"`
}

// FeedScanner pushes wedge input into the scanner accumulator. Complete codes
// surface as SCAN_COMPLETE events.
func (h *OperationHandler) FeedScanner(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	var req ScanInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.scanners.FeedString(id, req.Input); err != nil {
		h.respondOperationError(c, "Scan input rejected", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Input accepted", nil)
}

// StartScannerListener begins reading a transport-attached scanner in the
// background.
func (h *OperationHandler) StartScannerListener(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	if err := h.scanners.StartListening(id); err != nil {
		h.respondOperationError(c, "Failed to start scanner", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Scanner listening", nil)
}

// StopScannerListener stops a background scanner listener.
func (h *OperationHandler) StopScannerListener(c *gin.Context) {
	id, ok := h.deviceID(c)
	if !ok {
		return
	}

	h.scanners.StopListening(id)
	utils.SuccessResponse(c, http.StatusOK, "Scanner stopped", nil)
}

func (h *OperationHandler) respondTransaction(c *gin.Context, tx *model.PaymentTransaction, err error, message string) {
	if err != nil {
		var declined *model.PaymentDeclinedError
		var encoding *model.EncodingError
		switch {
		case errors.As(err, &declined):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"success":     false,
				"message":     "Payment declined",
				"reason":      declined.Reason,
				"transaction": tx,
			})
		case errors.As(err, &encoding):
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid payment request", err)
		default:
			h.respondOperationError(c, "Terminal communication failed", err)
		}
		return
	}
	utils.SuccessResponse(c, http.StatusOK, message, tx)
}

func (h *OperationHandler) deviceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device id", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *OperationHandler) respondOperationError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, model.ErrDeviceNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
	case errors.Is(err, model.ErrDeviceDisabled):
		utils.ErrorResponse(c, http.StatusConflict, message, err)
	default:
		var encoding *model.EncodingError
		if errors.As(err, &encoding) {
			utils.ErrorResponse(c, http.StatusBadRequest, message, err)
			return
		}
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	}
}
