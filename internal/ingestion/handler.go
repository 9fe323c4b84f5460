package ingestion

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"invoice-intake/internal/constants"
	"invoice-intake/internal/logger"
	pkgerrors "invoice-intake/pkg/errors"
	"invoice-intake/pkg/middleware"
)

// ApiResponse is the envelope every endpoint returns.
type ApiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
}

type HistoryEntryResponse struct {
	Source     string    `json:"source"`
	IngestedAt time.Time `json:"ingested_at"`
	Status     string    `json:"status"`
}

type IntakeItemResponse struct {
	DedupeKey     string                 `json:"dedupe_key"`
	InvoiceNumber string                 `json:"invoice_number"`
	Supplier      string                 `json:"supplier"`
	Amount        float64                `json:"amount"`
	InvoiceDate   time.Time              `json:"invoice_date"`
	FileHash      *string                `json:"file_hash"`
	History       []HistoryEntryResponse `json:"history"`
}

type FailureResponse struct {
	Source     string    `json:"source"`
	ErrorType  string    `json:"error_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RecordFailureRequest struct {
	Source     string     `json:"source" binding:"required"`
	ErrorType  string     `json:"error_type" binding:"required"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		invoices := v1.Group("/invoices", middleware.RequireScope(constants.ScopeFinanceAnalyst))
		{
			invoices.GET("/intake", h.ListIntake)
		}

		ops := v1.Group("/ingestion", middleware.RequireScope(constants.ScopeFinanceOps))
		{
			ops.GET("/status", h.ListFailures)
			ops.POST("/sync/ap-email", h.SyncAPEmail)
			ops.POST("/sync/accounting", h.SyncAccounting)
			ops.POST("/failures", h.RecordFailure)
		}
	}
}

// ListIntake returns the intake queue for analysts, filtered by source and
// sorted by ingestion timestamp.
func (h *Handler) ListIntake(c *gin.Context) {
	var source *Source
	if raw := c.Query("source"); raw != "" {
		parsed, err := ParseSource(raw)
		if err != nil {
			h.handleError(c, pkgerrors.ErrValidation.WithCause(err).WithDetail("parameter", "source"))
			return
		}
		source = &parsed
	}

	sort := c.DefaultQuery("sort", "desc")
	if sort != "asc" && sort != "desc" {
		h.handleError(c, pkgerrors.ErrValidation.WithDetail("parameter", "sort"))
		return
	}
	newestFirst := sort == "desc"

	items, err := h.service.ListForAnalyst(c.Request.Context(), source, newestFirst)
	if err != nil {
		h.handleError(c, pkgerrors.Wrap(err, pkgerrors.ErrInternal))
		return
	}

	response := make([]IntakeItemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, toIntakeItemResponse(item))
	}

	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: response})
}

// ListFailures returns ingestion failure events for operations staff.
func (h *Handler) ListFailures(c *gin.Context) {
	failures, err := h.service.ListIngestionFailures(c.Request.Context())
	if err != nil {
		h.handleError(c, pkgerrors.Wrap(err, pkgerrors.ErrInternal))
		return
	}

	response := make([]FailureResponse, 0, len(failures))
	for _, failure := range failures {
		response = append(response, FailureResponse{
			Source:     string(failure.Source),
			ErrorType:  failure.ErrorType,
			OccurredAt: failure.OccurredAt,
		})
	}

	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: response})
}

// SyncAPEmail triggers one AP mailbox sync round. Scheduling cadence is the
// caller's concern; this endpoint runs a single fetch attempt.
func (h *Handler) SyncAPEmail(c *gin.Context) {
	h.runSync(c, h.service.ProcessAPEmailInbox)
}

// SyncAccounting triggers one accounting system sync round.
func (h *Handler) SyncAccounting(c *gin.Context) {
	h.runSync(c, h.service.ProcessAccountingSync)
}

func (h *Handler) runSync(c *gin.Context, process func(ctx context.Context, processedAt time.Time) ([]IngestedInvoice, error)) {
	ingested, err := process(c.Request.Context(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrSourceNotConfigured) {
			h.handleError(c, pkgerrors.ErrUnavailable.WithCause(err))
			return
		}
		h.handleError(c, pkgerrors.Wrap(err, pkgerrors.ErrInternal))
		return
	}

	response := make([]IntakeItemResponse, 0, len(ingested))
	for _, item := range ingested {
		response = append(response, toIntakeItemResponse(item))
	}

	c.JSON(http.StatusOK, ApiResponse{Success: true, Data: response})
}

// RecordFailure records a failure event directly, without a fetch attempt.
// Used by schedulers that already know an integration is down.
func (h *Handler) RecordFailure(c *gin.Context) {
	var req RecordFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, pkgerrors.ErrValidation.WithCause(err))
		return
	}

	source, err := ParseSource(req.Source)
	if err != nil {
		h.handleError(c, pkgerrors.ErrValidation.WithCause(err).WithDetail("parameter", "source"))
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	if err := h.service.RecordIngestionFailure(c.Request.Context(), source, req.ErrorType, occurredAt); err != nil {
		h.handleError(c, pkgerrors.Wrap(err, pkgerrors.ErrInternal))
		return
	}

	c.JSON(http.StatusCreated, ApiResponse{Success: true})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := pkgerrors.ToHTTPStatus(err)
	response := pkgerrors.ToErrorResponse(err)

	c.JSON(status, ApiResponse{Success: false, Error: response.Error, ErrorCode: response.ErrorCode})
}

func toIntakeItemResponse(item IngestedInvoice) IntakeItemResponse {
	var fileHash *string
	if item.FileHash != "" {
		hash := item.FileHash
		fileHash = &hash
	}

	history := make([]HistoryEntryResponse, 0, len(item.History))
	for _, entry := range item.History {
		history = append(history, HistoryEntryResponse{
			Source:     string(entry.Source),
			IngestedAt: entry.IngestedAt,
			Status:     entry.Status,
		})
	}

	return IntakeItemResponse{
		DedupeKey:     item.DedupeKey,
		InvoiceNumber: item.Metadata.InvoiceNumber,
		Supplier:      item.Metadata.Supplier,
		Amount:        item.Metadata.Amount,
		InvoiceDate:   item.Metadata.InvoiceDate,
		FileHash:      fileHash,
		History:       history,
	}
}
