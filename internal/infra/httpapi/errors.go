package httpapi

import (
	"errors"
	"net/http"

	"sweep_notifier/internal/app"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"

	"github.com/gin-gonic/gin"
)

// APIError is the body of every failed response, wrapped as {"error": ...}.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeSubscriptionLimit = "SUBSCRIPTION_LIMIT"
	CodeUpstream          = "UPSTREAM_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// fromError maps service errors onto HTTP statuses.
func fromError(err error) *APIError {
	switch {
	case errors.Is(err, subscription.ErrLimitExceeded):
		return &APIError{Code: CodeSubscriptionLimit, Status: http.StatusTooManyRequests,
			Message: "too many pending subscriptions for this device"}
	case errors.Is(err, subscription.ErrNotFound):
		return &APIError{Code: CodeNotFound, Status: http.StatusNotFound, Message: "subscription not found"}
	case errors.Is(err, schedule.ErrNotFound):
		return &APIError{Code: CodeNotFound, Status: http.StatusNotFound, Message: "schedule not found"}
	case errors.Is(err, app.ErrInvalidRequest), schedule.IsComputationError(err, ""):
		return &APIError{Code: CodeValidation, Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, app.ErrAllSourcesFailed):
		return &APIError{Code: CodeUpstream, Status: http.StatusBadGateway, Message: "schedule data is unavailable"}
	default:
		return &APIError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func respondError(c *gin.Context, err error) {
	apiErr := fromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(apiErr.Status, errorEnvelope{Error: apiErr})
}

func respondValidation(c *gin.Context, err error) {
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(http.StatusBadRequest, errorEnvelope{Error: &APIError{
		Code:    CodeValidation,
		Message: err.Error(),
	}})
}
