// Package models - API request types and input validation.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Quota request actions.
const (
	ActionCheck  = "check"
	ActionRecord = "record"
)

// QuotaRequest is the body of POST /api/v1/quota. The action field selects
// between a read-only quota check and recording a completed attempt.
//
// Security Notes:
// - Fingerprint is a client-supplied hint, never a credential
// - Success/ErrorMessage are only meaningful for the record action
type QuotaRequest struct {
	Action       string `json:"action"`                 // "check" or "record"
	Fingerprint  string `json:"fingerprint"`            // Client-supplied device fingerprint
	Success      bool   `json:"success,omitempty"`      // Whether the downstream generation succeeded
	ErrorMessage string `json:"errorMessage,omitempty"` // Downstream error detail for the audit log
}

// Validate checks structural request constraints before any store access.
func (r *QuotaRequest) Validate() error {
	if r.Action == "" {
		return errors.New("action is required")
	}
	if r.Action != ActionCheck && r.Action != ActionRecord {
		return fmt.Errorf("unknown action: %s", r.Action)
	}
	if strings.TrimSpace(r.Fingerprint) == "" {
		return errors.New("fingerprint is required")
	}
	return nil
}

// ListAttemptsRequest carries the parsed query parameters for the admin
// attempt-log endpoint.
type ListAttemptsRequest struct {
	Since string `json:"since,omitempty"` // RFC3339 lower bound, default 24h ago
	Limit int    `json:"limit,omitempty"` // Max entries, default 100, capped at 1000
}

// Normalize applies defaults and bounds to pagination parameters.
func (r *ListAttemptsRequest) Normalize() {
	if r.Limit <= 0 {
		r.Limit = 100
	}
	if r.Limit > 1000 {
		r.Limit = 1000
	}
}
