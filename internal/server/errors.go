package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/adsboard/adsboard/internal/crypto"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware maps domain errors pushed onto the gin context to
// HTTP responses. Handlers never write error JSON themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, credentialdomain.ErrNotAuthenticated):
		return http.StatusUnauthorized, errorPayload{
			Type:    "not_authenticated",
			Message: "no Amazon account is connected",
		}
	case errors.Is(err, credentialdomain.ErrReauthorizationRequired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "reauthorization_required",
			Message: "the Amazon connection is no longer valid; reconnect the account",
		}
	case errors.Is(err, credentialdomain.ErrInvalidState):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: "unknown, expired, or already-used authorization state",
		}
	case errors.Is(err, credentialdomain.ErrInvalidRequest),
		errors.Is(err, auditdomain.ErrInvalidEventType),
		errors.Is(err, auditdomain.ErrInvalidStatus):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, credentialdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "provider_unavailable",
			Message: "the token provider is unavailable; try again later",
		}
	case errors.Is(err, credentialdomain.ErrConcurrentUpdate):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "the credential was updated concurrently",
		}
	case errors.Is(err, crypto.ErrDecrypt):
		// Key misconfiguration; the detail stays in the logs.
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
