package handler

import (
	"context"
	"errors"
	"net/http"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallOrchestrator is the orchestrator surface the call endpoints drive
type CallOrchestrator interface {
	RunCycle(ctx context.Context, clients []collection.Client) (orchestration.CycleSummary, error)
	TriggerRetry(ctx context.Context, invoiceRef string) error
	ReconcileLedger(ctx context.Context) (written, remaining int)
}

// CallHandler handles the call management API endpoints
type CallHandler struct {
	orchestrator CallOrchestrator
	directory    collection.ClientDirectory
	repository   collection.CallAttemptRepository
	logger       *zap.Logger
}

// NewCallHandler creates a new CallHandler
func NewCallHandler(
	orchestrator CallOrchestrator,
	directory collection.ClientDirectory,
	repository collection.CallAttemptRepository,
	logger *zap.Logger,
) *CallHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallHandler{
		orchestrator: orchestrator,
		directory:    directory,
		repository:   repository,
		logger:       logger,
	}
}

// RegisterRoutes registers the call management routes
func (h *CallHandler) RegisterRoutes(rg *gin.RouterGroup) {
	calls := rg.Group("/calls")
	{
		calls.POST("/run", h.RunCycle)
		calls.GET("/:id", h.GetAttempt)
	}
	invoices := rg.Group("/invoices")
	{
		invoices.POST("/:ref/retry", h.TriggerRetry)
	}
	ledger := rg.Group("/ledger")
	{
		ledger.POST("/reconcile", h.Reconcile)
	}
}

// RunCycle starts a dispatch cycle over every registered client. Returns 409
// while a previous cycle is still running.
func (h *CallHandler) RunCycle(c *gin.Context) {
	clients, err := h.directory.ListClients(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list clients for manual cycle", zap.Error(err))
		c.JSON(http.StatusInternalServerError,
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to list clients"))
		return
	}

	summary, err := h.orchestrator.RunCycle(c.Request.Context(), clients)
	if err != nil {
		code := dto.CodeForError(err)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromCycleSummary(summary)))
}

// GetAttempt returns one call attempt by ID
func (h *CallHandler) GetAttempt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "invalid attempt id"))
		return
	}

	attempt, err := h.repository.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, collection.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound,
				dto.NewErrorResponse(dto.ErrCodeNotFound, "call attempt not found"))
			return
		}
		h.logger.Error("Failed to load call attempt", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError,
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to load call attempt"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromCallAttempt(attempt)))
}

// TriggerRetry schedules another reminder attempt for an invoice
func (h *CallHandler) TriggerRetry(c *gin.Context) {
	invoiceRef := c.Param("ref")
	if invoiceRef == "" {
		c.JSON(http.StatusBadRequest,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "invoice ref is required"))
		return
	}

	if err := h.orchestrator.TriggerRetry(c.Request.Context(), invoiceRef); err != nil {
		code := dto.CodeForError(err)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"invoice_ref": invoiceRef}))
}

// Reconcile replays queued ledger writes immediately
func (h *CallHandler) Reconcile(c *gin.Context) {
	written, remaining := h.orchestrator.ReconcileLedger(c.Request.Context())
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ReconcileResponse{
		Written:   written,
		Remaining: remaining,
	}))
}
