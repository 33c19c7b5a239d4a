package v1

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raglinehq/ragline/internal/domain"
)

// Chat handles buffered chat requests.
// POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.Chat(c.Request().Context(), &req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatStream handles streaming chat requests over SSE. Events are named:
// delta events carry incremental text, a done event closes a successful
// run, an error event closes a failed one. Failures before the stream
// starts come back as plain HTTP errors instead.
// POST /v1/chat/stream
func (h *Handler) ChatStream(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	// The response stays uncommitted until the first event, so pre-stream
	// failures can still use a real status code.
	started := false
	emit := func(ev domain.ChatStreamEvent) error {
		if !started {
			c.Response().Header().Set("Content-Type", "text/event-stream")
			c.Response().Header().Set("Cache-Control", "no-cache")
			c.Response().Header().Set("Connection", "keep-alive")
			c.Response().WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", ev.Type, ev.Data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.service.ChatStream(c.Request().Context(), &req, emit)
	if !started {
		if err != nil {
			return errorJSON(c, err)
		}
		// A run with no output still needs the stream terminator below.
		c.Response().Header().Set("Content-Type", "text/event-stream")
		c.Response().WriteHeader(http.StatusOK)
	}

	// Write [DONE] marker
	fmt.Fprintf(c.Response().Writer, "data: [DONE]\n\n")
	flusher.Flush()

	if err != nil {
		// Status is committed; the error event already went out.
		log.Printf("ERROR: streaming chat failed: %v", err)
	}
	return nil
}
