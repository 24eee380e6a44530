// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent
// formatting: machine-readable error codes, RFC3339 timestamps, and helper
// constructors for common responses.
package models

import (
	"time"
)

// QuotaStatusResponse is returned by the check action. It reports the
// caller's authoritative quota state without mutating anything.
type QuotaStatusResponse struct {
	CanGenerate          bool      `json:"canGenerate"`
	GenerationsUsed      int       `json:"generationsUsed"`
	GenerationsRemaining int       `json:"generationsRemaining"`
	ResetTime            time.Time `json:"resetTime"` // Next UTC midnight
	IsAuthenticated      bool      `json:"isAuthenticated"`
	LimitType            string    `json:"limitType"`
}

// RecordResponse is returned by a successful record action.
type RecordResponse struct {
	Success              bool `json:"success"`
	GenerationsUsed      int  `json:"generationsUsed"`
	GenerationsRemaining int  `json:"generationsRemaining"`
}

// QuotaExceededResponse is the HTTP 429 body returned when a record call
// arrives with no remaining quota. Counts are included so the client can
// update its display without another round trip.
type QuotaExceededResponse struct {
	Error                string `json:"error"`
	CanGenerate          bool   `json:"canGenerate"`
	GenerationsUsed      int    `json:"generationsUsed"`
	GenerationsRemaining int    `json:"generationsRemaining"`
}

// ListAttemptsResponse pages the audit log for the admin surface.
type ListAttemptsResponse struct {
	Attempts   []*AttemptLog `json:"attempts"`
	TotalCount int           `json:"total_count"`
	Since      time.Time     `json:"since"`
}

// UsageSummaryResponse aggregates one day's counters for the admin surface.
type UsageSummaryResponse struct {
	Date                 string `json:"date"`
	AuthenticatedUsers   int    `json:"authenticated_users"`
	AnonymousIdentities  int    `json:"anonymous_identities"`
	TotalGenerations     int    `json:"total_generations"`
	AnonymousGenerations int    `json:"anonymous_generations"`
}

// ErrorResponse provides structured error information with debugging context.
type ErrorResponse struct {
	Error     string    `json:"error"`                // Error type (always "error")
	Message   string    `json:"message"`              // Human-readable error description
	Code      string    `json:"code,omitempty"`       // Machine-readable error code
	Timestamp time.Time `json:"timestamp"`            // Error occurrence time
	RequestID string    `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status constants.
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Machine-readable error codes.
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Extensible for service-specific errors
const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"      // 400: Malformed or missing input
	ErrorCodeQuotaExceeded       = "QUOTA_EXCEEDED"       // 429: Daily cap reached
	ErrorCodeUnauthorized        = "UNAUTHORIZED"         // 401: Admin authentication required
	ErrorCodeForbidden           = "FORBIDDEN"            // 403: Permission denied
	ErrorCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE" // 503: Store or auth provider unreachable
	ErrorCodeInternalError       = "INTERNAL_ERROR"       // 500: Server-side error
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewQuotaExceededResponse builds the 429 body from the current counters.
func NewQuotaExceededResponse(used int) *QuotaExceededResponse {
	return &QuotaExceededResponse{
		Error:                "Daily generation limit reached",
		CanGenerate:          false,
		GenerationsUsed:      used,
		GenerationsRemaining: 0,
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
