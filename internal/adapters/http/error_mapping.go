package httpadapter

import (
	"net/http"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrUpstreamError):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userFacingError hides upstream detail behind a stable message per kind.
func userFacingError(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return "query is required"
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return "session not found"
	case domain.IsKind(err, domain.ErrUpstreamTimeout):
		return "the assistant took too long to respond, please retry"
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrUpstreamError),
		domain.IsKind(err, domain.ErrGenerationFailed):
		return "the assistant is temporarily unavailable, please retry"
	default:
		return "internal error"
	}
}
