package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/gateway"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds webhook payload reads; transcripts fit comfortably
const maxWebhookBody = 4 << 20

// WebhookGateway verifies and normalizes raw provider webhook payloads
type WebhookGateway interface {
	VerifyWebhookSecret(got string) error
	ParseWebhook(body []byte) (collection.CallEvent, bool, error)
}

// EventSink applies normalized gateway events to the call pipeline
type EventSink interface {
	HandleGatewayEvent(ctx context.Context, event collection.CallEvent) error
}

// WebhookHandler receives call lifecycle webhooks from the voice provider.
// The provider retries on non-2xx, so every payload we can attribute to a
// known or irrelevant event is acknowledged with 200 even when dropped.
type WebhookHandler struct {
	gateway WebhookGateway
	sink    EventSink
	logger  *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(gw WebhookGateway, sink EventSink, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		gateway: gw,
		sink:    sink,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook route
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/vapi/webhook", h.HandleVapiWebhook)
}

// HandleVapiWebhook processes one provider webhook delivery
func (h *WebhookHandler) HandleVapiWebhook(c *gin.Context) {
	if err := h.gateway.VerifyWebhookSecret(c.GetHeader(gateway.WebhookSecretHeader)); err != nil {
		h.logger.Warn("Webhook secret verification failed",
			zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusUnauthorized,
			dto.NewErrorResponse(dto.ErrCodeUnauthorized, "webhook verification failed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "failed to read payload"))
		return
	}

	event, relevant, err := h.gateway.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("Dropping unparseable webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "unparseable payload"))
		return
	}
	if !relevant {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"handled": false}))
		return
	}

	if err := h.sink.HandleGatewayEvent(c.Request.Context(), event); err != nil {
		// Unknown handles are logged and acknowledged; a retry from the
		// provider would not make the handle known.
		if errors.Is(err, collection.ErrUnknownCallHandle) {
			c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"handled": false}))
			return
		}
		h.logger.Error("Failed to apply gateway event",
			zap.String("handle", string(event.Handle)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError,
			dto.NewErrorResponse(dto.ErrCodeInternal, "failed to apply event"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"handled": true}))
}
