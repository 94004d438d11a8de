package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"interview-service/internal/models"
	"interview-service/internal/redisclient"
	"interview-service/internal/service"
	"interview-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	sessions      *service.SessionService
	cancellations *service.CancellationService
	payouts       *service.PayoutService
	redis         *redisclient.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions *service.SessionService, cancellations *service.CancellationService, payouts *service.PayoutService, redis *redisclient.Client) *Handler {
	return &Handler{
		sessions:      sessions,
		cancellations: cancellations,
		payouts:       payouts,
		redis:         redis,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", h.bookSession)
		v1.GET("/sessions/:id", h.getSession)
		v1.POST("/sessions/:id/confirm-payment", h.confirmPayment)
		v1.POST("/sessions/:id/start", h.startSession)
		v1.POST("/sessions/:id/complete", h.completeSession)
		v1.POST("/sessions/:id/cancel", h.cancelSession)
		v1.POST("/payouts", h.requestPayout)
		v1.GET("/payouts/:id", h.getPayout)
		v1.POST("/payouts/:id/retry", h.retryPayout)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bookSession handles session booking
func (h *Handler) bookSession(c *gin.Context) {
	var req service.BookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": err.Error(),
		})
		return
	}

	session, err := h.sessions.BookSession(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// getSession handles get session by ID
func (h *Handler) getSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// confirmPayment moves a pending_payment session to scheduled
func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": err.Error(),
		})
		return
	}

	if err := h.sessions.ConfirmPayment(c.Request.Context(), c.Param("id"), req.PaymentIntentID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.SessionStatusScheduled})
}

// startSession moves a scheduled session to in_progress
func (h *Handler) startSession(c *gin.Context) {
	if err := h.sessions.StartSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SessionStatusInProgress})
}

// completeSession moves an in_progress session to completed
func (h *Handler) completeSession(c *gin.Context) {
	if err := h.sessions.CompleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SessionStatusCompleted})
}

type cancelSessionRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
	Reason      string `json:"reason,omitempty"`
}

// cancelSession runs the cancellation orchestrator
func (h *Handler) cancelSession(c *gin.Context) {
	var req cancelSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	cacheKey := "cancel:" + c.Param("id") + ":" + req.RequesterID

	// Absorb double-submitted clicks before they reach the orchestrator.
	// The orchestrator is idempotent anyway; this just short-circuits.
	var cached gin.H
	if found, err := h.redis.GetCachedResponse(ctx, cacheKey, &cached); err == nil && found {
		c.JSON(http.StatusOK, cached)
		return
	}

	if claimed, err := h.redis.MarkInFlight(ctx, cacheKey, 30*time.Second); err == nil && !claimed {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"details": "cancellation already in progress",
		})
		return
	}
	defer func() {
		if err := h.redis.ClearInFlight(ctx, cacheKey); err != nil {
			util.GetLogger().Warn("Failed to clear in-flight key", zap.Error(err))
		}
	}()

	result, err := h.cancellations.Cancel(ctx, c.Param("id"), req.RequesterID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"status": models.SessionStatusCancelled,
		"refund": gin.H{
			"percentage":             result.RefundPercent,
			"amount_cents":           result.RefundAmountCents,
			"reason":                 result.RefundReason,
			"reconciliation_pending": result.ReconciliationPending,
		},
	}
	if _, err := h.redis.CacheResponse(ctx, cacheKey, resp, 5*time.Minute); err != nil {
		util.GetLogger().Warn("Failed to cache cancel response", zap.Error(err))
	}

	c.JSON(http.StatusOK, resp)
}

type requestPayoutRequest struct {
	InterviewerID string `json:"interviewer_id" binding:"required"`
}

// requestPayout runs the payout batcher
func (h *Handler) requestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": err.Error(),
		})
		return
	}

	payout, err := h.payouts.RequestPayout(c.Request.Context(), req.InterviewerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payout_id":    payout.ID,
		"amount_cents": payout.AmountCents,
		"status":       payout.Status,
	})
}

// getPayout handles get payout by ID
func (h *Handler) getPayout(c *gin.Context) {
	payout, err := h.payouts.GetPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

// retryPayout re-attempts the transfer of a failed payout
func (h *Handler) retryPayout(c *gin.Context) {
	payout, err := h.payouts.RetryPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payout_id":    payout.ID,
		"amount_cents": payout.AmountCents,
		"status":       payout.Status,
	})
}

// writeError maps domain errors to HTTP responses. ReconciliationRequired is
// the one deliberate oddity: the money already moved, so the caller gets an
// accepted-and-finalizing response, never a failure.
func writeError(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		authErr       *models.AuthorizationError
		notFoundErr   *models.NotFoundError
		transitionErr *models.InvalidTransitionError
		terminalErr   *models.TerminalStateError
		staleErr      *models.StaleStateError
		gatewayErr    *models.GatewayError
		reconErr      *models.ReconciliationRequired
		fundsErr      *models.NoEligibleFundsError
	)

	switch {
	case errors.As(err, &reconErr):
		body := gin.H{
			"status": "accepted",
			"detail": "payment operation confirmed, confirmation of the local record is pending",
		}
		if reconErr.Operation == models.ReconOpPayoutTransfer {
			// For transfer records the session id field carries the payout id.
			body["payout"] = gin.H{
				"payout_id":              reconErr.SessionID,
				"reconciliation_pending": true,
			}
		} else {
			body["refund"] = gin.H{
				"reconciliation_pending": true,
			}
		}
		c.JSON(http.StatusAccepted, body)
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": err.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "details": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "details": err.Error()})
	case errors.As(err, &terminalErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_terminal", "details": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_transition", "details": err.Error()})
	case errors.As(err, &staleErr):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "details": err.Error()})
	case errors.As(err, &fundsErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "insufficient_funds",
			"shortfall_cents": fundsErr.ShortfallCents,
		})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
