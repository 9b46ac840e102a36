// Package gateway is the HTTP edge: it validates inbound webhook deliveries
// and hands them to the queue. No decision logic lives here.
package gateway

import (
	"net/http"
	"time"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/internal/queue"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/httpkit"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/phone"
	"clinic_intake_backend/platform/sanitize"
	"clinic_intake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errEnqueueFailed  = "failed to accept message"
)

type Handler struct {
	enqueuer queue.Enqueuer
	scanner  *domain.KeywordScanner
	val      *validator.Validator
	log      *logger.Logger
}

func NewHandler(enqueuer queue.Enqueuer, scanner *domain.KeywordScanner, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		enqueuer: enqueuer,
		scanner:  scanner,
		val:      val,
		log:      log,
	}
}

// HandleInboundMessage accepts one chat message for asynchronous processing.
// POST /v1/webhook/messages
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var req WebhookMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	body := sanitize.Text(req.Body)
	if body == "" {
		httpkit.Error(c, http.StatusBadRequest, errValidation, "body is empty after sanitization")
		return
	}

	msg := engine.InboundMessage{
		ThreadID:         req.ThreadID,
		SenderAddress:    phone.NormalizeE164(req.SenderAddress),
		Body:             body,
		SessionName:      req.SessionName,
		ChannelMessageID: req.ChannelMessageID,
		ReceivedAt:       receivedAt,
	}

	// Urgent keyword prescan picks the lane before any model call, so a
	// bleeding patient never waits behind a backlog of price questions.
	lane := queue.LaneMessages
	if h.scanner.Scan(body) == domain.UrgencyCritical {
		lane = queue.LaneEscalation
	}

	if err := h.enqueuer.EnqueueInbound(c.Request.Context(), msg, lane); err != nil {
		h.log.Error("enqueue inbound failed", "threadId", req.ThreadID, "error", err)
		httpkit.Error(c, http.StatusServiceUnavailable, errEnqueueFailed, nil)
		return
	}

	httpkit.Accepted(c, WebhookMessageResponse{Status: "accepted", Lane: lane})
}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(cfg config.GatewayConfig, h *Handler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpkit.RequestLogger(log))
	router.Use(httpkit.SecurityHeaders())

	limiter := httpkit.NewIPRateLimiter(rate.Limit(cfg.GetRateLimitRPS()), cfg.GetRateLimitBurst(), log)
	router.Use(limiter.RateLimit())

	router.GET("/healthz", func(c *gin.Context) {
		httpkit.OK(c, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/webhook")
	v1.Use(httpkit.APIKeyRequired(cfg.GetWebhookAPIKey()))
	v1.POST("/messages", h.HandleInboundMessage)

	return router
}
