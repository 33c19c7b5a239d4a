package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// GetRecentDocuments lists the newest documents, optionally filtered by
// source. When both from and to are given (YYYY-MM-DD), lists documents
// created in that range instead; to is inclusive.
// GET /v1/documents/recent?limit=&source=&from=&to=
func (h *Handler) GetRecentDocuments(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	source := c.QueryParam("source")
	ctx := c.Request().Context()

	if fromStr, toStr := c.QueryParam("from"), c.QueryParam("to"); fromStr != "" && toStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from date, want YYYY-MM-DD"})
		}
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to date, want YYYY-MM-DD"})
		}

		docs, err := h.service.DocumentsByDateRange(ctx, from, to.AddDate(0, 0, 1), limit)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs})
	}

	docs, err := h.service.RecentDocuments(ctx, limit, source)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs})
}

// GetDocument retrieves one document.
// GET /v1/documents/:document_id
func (h *Handler) GetDocument(c echo.Context) error {
	doc, err := h.service.GetDocument(c.Request().Context(), c.Param("document_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	if doc == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "document not found"})
	}
	return c.JSON(http.StatusOK, doc)
}

// DiagnoseDatabase reports document store reachability and size.
// GET /v1/diagnostics/database
func (h *Handler) DiagnoseDatabase(c echo.Context) error {
	diag := h.service.DiagnoseDatabase(c.Request().Context())

	status := http.StatusOK
	if !diag.Reachable {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, diag)
}

// DiagnoseSearch runs one retrieval pass and returns per-branch details.
// GET /v1/diagnostics/search?q=
func (h *Handler) DiagnoseSearch(c echo.Context) error {
	diag, err := h.service.DiagnoseSearch(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, diag)
}
