package quota

import (
	"fmt"
	"net/http"

	"genquota/internal/models"
)

// ServiceError represents errors from the quota service with HTTP context.
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error

	// Used carries the current count on quota-exceeded errors so the
	// handler can include it in the 429 body.
	Used int
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewQuotaExceededError(used int) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeQuotaExceeded,
		Message:    "daily generation limit reached",
		StatusCode: http.StatusTooManyRequests,
		Used:       used,
	}
}

func NewUpstreamUnavailableError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
