// Package v1 provides the HTTP handlers for the chat API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raglinehq/ragline/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat API
	e.POST("/v1/chat", h.Chat)
	e.POST("/v1/chat/stream", h.ChatStream)

	// Session API
	e.GET("/v1/sessions/:session_id/turns", h.GetSessionTurns)
	e.GET("/v1/runs/:run_id", h.GetRun)

	// Document API
	e.GET("/v1/documents/recent", h.GetRecentDocuments)
	e.GET("/v1/documents/:document_id", h.GetDocument)

	// Diagnostics
	e.GET("/v1/diagnostics/database", h.DiagnoseDatabase)
	e.GET("/v1/diagnostics/search", h.DiagnoseSearch)

	e.GET("/health", h.Health)
}

// Health reports the reachability of each dependency independently, so a
// partial outage is distinguishable from a total one. The HTTP status stays
// 200 while any dependency is still reachable.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	report := h.service.Health(c.Request().Context())

	overall := report.Status()
	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, map[string]interface{}{
		"status":         overall,
		"version":        "0.1.0",
		"session_store":  report.SessionStore,
		"document_store": report.DocumentStore,
		"completion":     report.Completion,
	})
}
