package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-listing-api/internal/fetchers"
	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/internal/session"
	"marketplace-listing-api/pkg/credentials"
)

// statusFor maps an action error onto an HTTP status and an error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, credentials.ErrNoCredential), errors.Is(err, credentials.ErrCredentialExpired):
		return http.StatusUnauthorized, "login_required"
	case errors.Is(err, fetchers.ErrUnknownAction),
		errors.Is(err, fetchers.ErrInvalidMutation),
		errors.Is(err, models.ErrInvalidSortKey),
		errors.Is(err, session.ErrUnknownCategory):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, fetchers.ErrMutationInFlight), errors.Is(err, fetchers.ErrFetchInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, session.ErrNotMounted):
		return http.StatusServiceUnavailable, "view_unavailable"
	case errors.Is(err, fetchers.ErrRejected):
		return http.StatusUnprocessableEntity, "action_rejected"
	case errors.Is(err, fetchers.ErrHTTPStatus), errors.Is(err, fetchers.ErrMalformed), errors.Is(err, fetchers.ErrTransport):
		return http.StatusBadGateway, "upstream_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func loginRequired(err error) bool {
	return errors.Is(err, credentials.ErrNoCredential) || errors.Is(err, credentials.ErrCredentialExpired)
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	message := fetchers.UserMessage(err)
	if loginRequired(err) {
		message = "login required"
	}
	abortWithError(c, status, code, message, err.Error())
}

func abortWithError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error:   code,
		Code:    status,
		Message: message,
		Details: details,
	})
}
