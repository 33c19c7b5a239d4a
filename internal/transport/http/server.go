// Package http provides the HTTP server for the RAG pipeline.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/raglinehq/ragline/internal/service"
	v1 "github.com/raglinehq/ragline/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It serves the chat
// API, the session and document read endpoints and the health surface.
func NewServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	v1Handler.RegisterRoutes(e)

	return e
}
