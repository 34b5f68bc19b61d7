// Package server provides the HTTP handlers and server setup for the fraud
// name service, plus the middleware shared with the stub runner.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"contractkit/internal/contract"
	"contractkit/internal/core"
	"contractkit/internal/fraud"
	"contractkit/internal/observability"
)

// Handler holds the HTTP handlers
type Handler struct {
	detector *fraud.Detector
	metrics  *observability.Metrics
}

// NewHandler creates a new handler with the given detector. metrics may be nil.
func NewHandler(detector *fraud.Detector, metrics *observability.Metrics) *Handler {
	if detector == nil {
		detector = fraud.NewDetector()
	}
	return &Handler{
		detector: detector,
		metrics:  metrics,
	}
}

// CheckName handles PUT /frauds/name
func (h *Handler) CheckName(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !contract.SameMediaType(contentType, contract.ContentTypeJSON) {
		return HandleError(c, core.NewInvalidRequestErrorWithStatus(http.StatusUnsupportedMediaType,
			"content type must be application/json", nil))
	}

	var req fraud.NameRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return HandleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if strings.TrimSpace(req.Name) == "" {
		return HandleError(c, core.NewInvalidRequestError("name is required", nil))
	}

	resp := h.detector.CheckName(req.Name)

	verdict := "ok"
	if h.detector.IsFraudByName(req.Name) {
		verdict = "fraud"
	}
	if h.metrics != nil {
		h.metrics.FraudChecks.WithLabelValues(verdict).Inc()
	}
	slog.Debug("fraud name checked", "verdict", verdict)

	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleError converts handler errors to appropriate HTTP responses
func HandleError(c echo.Context, err error) error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return c.JSON(coreErr.HTTPStatusCode(), coreErr.ToJSON())
	}

	// Fallback for unexpected errors
	slog.Error("unexpected handler error", "error", err, "path", c.Request().URL.Path)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
