// Package storage provides durable persistence for daily usage counters and
// the attempt audit log. It exposes a clean interface implemented by
// in-memory, PostgreSQL, and SQLite backends.
//
// The one hard contract every backend must honor: the increment operations
// are atomic conditional insert-or-increments keyed by the (identity, date)
// uniqueness constraint. Two concurrent increments for the same identity and
// day must never both read the same count and both write count+1.
package storage

import (
	"context"
	"time"

	"genquota/internal/models"
)

// UsageStore is the persistence contract for quota enforcement.
type UsageStore interface {
	// UserUsage returns the authenticated identity's generation count for
	// the given UTC date, 0 when no row exists.
	UserUsage(ctx context.Context, userID, date string) (int, error)

	// AnonymousUsage returns the anonymous identity's own generation count
	// for the given UTC date, 0 when no row exists.
	AnonymousUsage(ctx context.Context, anonymousID, date string) (int, error)

	// UsageByIP sums generations_used across all anonymous rows sharing the
	// IP for the given date, excluding the identity's own row. Bounded to
	// the current date so expired rows never inflate the total.
	UsageByIP(ctx context.Context, ip, date, excludeAnonymousID string) (int, error)

	// IncrementUserUsage atomically inserts or increments the user's daily
	// row, but only while generations_used < cap. Returns the new count, or
	// ErrLimitReached when the row is already at or above the cap.
	IncrementUserUsage(ctx context.Context, userID, date string, cap int) (int, error)

	// IncrementAnonymousUsage is the anonymous-row counterpart of
	// IncrementUserUsage. IP and fingerprint are stored alongside the
	// counter for cross-IP aggregation and auditing.
	IncrementAnonymousUsage(ctx context.Context, anonymousID, ip, fingerprint, date string, cap int) (int, error)

	// AppendAttempt inserts an audit log entry. Entries are never mutated.
	AppendAttempt(ctx context.Context, entry *models.AttemptLog) error

	// Attempts returns audit entries created at or after since, newest
	// first, capped at limit.
	Attempts(ctx context.Context, since time.Time, limit int) ([]*models.AttemptLog, error)

	// UsageSummary aggregates one day's counters for the admin surface.
	UsageSummary(ctx context.Context, date string) (*models.UsageSummaryResponse, error)

	// PurgeExpired deletes anonymous usage rows older than usageBefore and
	// anonymous attempt log rows older than attemptsBefore. Returns the
	// number of rows removed.
	PurgeExpired(ctx context.Context, usageBefore, attemptsBefore time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type selects the backend (memory, postgres, sqlite).
	Type string

	// ConnectionString is the DSN for database backends.
	ConnectionString string

	// QueryTimeout bounds individual store operations.
	QueryTimeout time.Duration
}
