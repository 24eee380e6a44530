// Package models defines the data structures shared across the genquota
// service: usage counters, audit log entries, API request/response types,
// and service configuration.
package models

import "time"

// Limit type constants identify which daily cap applied to a decision.
const (
	LimitTypeAnonymous     = "anonymous"
	LimitTypeAuthenticated = "authenticated"
)

// DateFormat is the canonical key format for daily usage rows (UTC date).
const DateFormat = "2006-01-02"

// DailyUsage is one identity's generation counter for a single UTC day.
// Authenticated rows key on UserID, anonymous rows on AnonymousID; exactly
// one of the two is set. The (key, Date) pair is unique in storage.
type DailyUsage struct {
	UserID          string    `json:"user_id,omitempty"`
	AnonymousID     string    `json:"anonymous_id,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	Date            string    `json:"date"`
	GenerationsUsed int       `json:"generations_used"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AttemptLog is an append-only audit record of a generation attempt.
// Entries are written for every accepted attempt, every failed downstream
// attempt, and every attempt rejected at record time. Never mutated.
type AttemptLog struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id,omitempty"`
	AnonymousID       string    `json:"anonymous_id,omitempty"`
	IPAddress         string    `json:"ip_address"`
	Fingerprint       string    `json:"fingerprint,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	Success           bool      `json:"success"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	LimitType         string    `json:"limit_type"`
	GenerationsBefore int       `json:"generations_before"`
	GenerationsAfter  int       `json:"generations_after"`
}

// Day formats t as a UTC usage-row date key.
func Day(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// NextMidnightUTC returns the next UTC midnight after t, the moment all
// daily counters reset.
func NextMidnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
