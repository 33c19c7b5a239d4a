package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raglinehq/ragline/internal/domain"
)

// errorStatus maps pipeline errors to HTTP status codes. Transient
// dependency failures map to 503 so callers know a retry may succeed;
// upstream rejections map to 502; input rejections to 422.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmbeddingRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCompletionRejected):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrCompletionTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
}
