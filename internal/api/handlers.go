// Package api exposes the notification and QR flows over HTTP. Routes
// mirror the function-per-endpoint layout of the deployment this
// service fronts: /functions/notify, /functions/notification-preferences,
// /functions/qr-sign, /functions/qr-validate.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	apperrors "github.com/lablink/lablink/internal/errors"
	"github.com/lablink/lablink/internal/middleware"
	"github.com/lablink/lablink/internal/notify"
	"github.com/lablink/lablink/internal/services"
	"github.com/lablink/lablink/internal/telemetry"
)

// NotificationService is the notify/preferences surface the handlers
// depend on.
type NotificationService interface {
	Notify(ctx context.Context, req services.NotifyRequest) (*services.NotifyResponse, error)
	GetPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error)
}

// QRService is the QR surface the handlers depend on.
type QRService interface {
	Sign(ctx context.Context, req services.SignRequest) (*services.SignResponse, error)
	Validate(ctx context.Context, req services.ValidateRequest) (json.RawMessage, error)
}

// HealthChecker reports liveness of a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	notifications NotificationService
	qr            QRService
	db            HealthChecker
	cache         HealthChecker
}

// NewHandler creates the HTTP handler set. db and cache are optional
// health probes.
func NewHandler(notifications NotificationService, qr QRService, db, cache HealthChecker) *Handler {
	return &Handler{notifications: notifications, qr: qr, db: db, cache: cache}
}

// Router builds the gin engine with the full middleware chain.
func (h *Handler) Router(serviceName string) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogging())

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	router.GET("/health", h.Health)

	functions := router.Group("/functions")
	functions.POST("/notify", h.Notify)
	functions.GET("/notification-preferences", h.NotificationPreferences)
	functions.POST("/qr-sign", h.QRSign)
	functions.POST("/qr-validate", h.QRValidate)

	return router
}

// Health reports liveness of the service and its dependencies.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	if h.db != nil {
		if err := h.db.Health(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}
	if h.cache != nil {
		if err := h.cache.Health(c.Request.Context()); err != nil {
			// The cache is a read-through optimization; the service stays
			// up without it.
			checks["cache"] = "unhealthy"
		} else {
			checks["cache"] = "healthy"
		}
	}

	body := gin.H{"status": "healthy", "service": "lablink-functions", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	c.JSON(status, body)
}

// Notify accepts a notification event and returns the per-channel
// dispatch verdicts.
func (h *Handler) Notify(c *gin.Context) {
	var req services.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid or empty JSON body")
		return
	}

	resp, err := h.notifications.Notify(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// NotificationPreferences returns a user's stored channel preferences
// grouped by notification type.
func (h *Handler) NotificationPreferences(c *gin.Context) {
	userID := c.Query("user_id")

	rows, err := h.notifications.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":            userID,
		"preferences":        services.PreferencesByType(rows),
		"available_channels": notify.Channels,
	})
}

// QRSign generates and persists a signed QR payload for an item.
func (h *Handler) QRSign(c *gin.Context) {
	var req services.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid or empty JSON body")
		return
	}

	resp, err := h.qr.Sign(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type qrValidateBody struct {
	QRPayload string `json:"qr_payload"`
	UserID    string `json:"user_id"`
}

// QRValidate validates a scanned QR payload, attributing the scan to
// the calling client.
func (h *Handler) QRValidate(c *gin.Context) {
	var body qrValidateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid or empty JSON body")
		return
	}

	result, err := h.qr.Validate(c.Request.Context(), services.ValidateRequest{
		QRPayload: body.QRPayload,
		UserID:    body.UserID,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", result)
}

// respondError maps service errors onto the {error, details?} response
// shape. Internal details are logged, never echoed to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Type {
		case apperrors.ErrorTypeDatabase, apperrors.ErrorTypeExternal, apperrors.ErrorTypeInternal:
			// The Details field carries the driver error; only the generic
			// message leaves the process.
			telemetry.LogFromContext(c.Request.Context()).WithError(appErr).Error("Request failed")
		}
		errorResponse(c, appErr.HTTPStatus, appErr.Message)
		return
	}

	telemetry.LogFromContext(c.Request.Context()).WithError(err).Error("Unhandled error")
	errorResponse(c, http.StatusInternalServerError, "Internal server error")
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
