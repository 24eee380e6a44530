package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"genquota/internal/models"
)

// SQLiteStore implements UsageStore on SQLite. Suitable for single-node
// deployments; the conditional increments use the same upsert-with-guard
// shape as the PostgreSQL backend, and SQLite's single-writer model
// serializes them.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore creates a SQLite storage instance and ensures the schema.
func NewSQLiteStore(config Config) (*SQLiteStore, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ss := &SQLiteStore{
		db:      db,
		timeout: config.QueryTimeout,
	}

	if err := ss.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return ss, nil
}

func (ss *SQLiteStore) ensureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS user_usage (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			generations_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, date)
		);
		CREATE TABLE IF NOT EXISTS anonymous_usage (
			anonymous_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			date TEXT NOT NULL,
			generations_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (anonymous_id, date)
		);
		CREATE INDEX IF NOT EXISTS anonymous_usage_ip_date ON anonymous_usage (ip_address, date);
		CREATE TABLE IF NOT EXISTS attempt_log (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			anonymous_id TEXT,
			ip_address TEXT NOT NULL,
			fingerprint TEXT,
			created_at TIMESTAMP NOT NULL,
			success INTEGER NOT NULL,
			error_message TEXT,
			limit_type TEXT NOT NULL,
			generations_before INTEGER NOT NULL,
			generations_after INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attempt_log_created_at ON attempt_log (created_at);
	`
	if _, err := ss.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (ss *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ss.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, ss.timeout)
}

// UserUsage returns the user's count for the date, 0 when no row exists.
func (ss *SQLiteStore) UserUsage(ctx context.Context, userID, date string) (int, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	var used int
	err := ss.db.QueryRowContext(ctx,
		`SELECT generations_used FROM user_usage WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user usage: %w", err)
	}
	return used, nil
}

// AnonymousUsage returns the anonymous identity's own count for the date.
func (ss *SQLiteStore) AnonymousUsage(ctx context.Context, anonymousID, date string) (int, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	var used int
	err := ss.db.QueryRowContext(ctx,
		`SELECT generations_used FROM anonymous_usage WHERE anonymous_id = ? AND date = ?`,
		anonymousID, date,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get anonymous usage: %w", err)
	}
	return used, nil
}

// UsageByIP sums other fingerprints' usage for the same IP, current date only.
func (ss *SQLiteStore) UsageByIP(ctx context.Context, ip, date, excludeAnonymousID string) (int, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	var total int
	err := ss.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(generations_used), 0) FROM anonymous_usage
		 WHERE ip_address = ? AND date = ? AND anonymous_id <> ?`,
		ip, date, excludeAnonymousID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage by ip: %w", err)
	}
	return total, nil
}

// IncrementUserUsage performs the atomic insert-or-increment for a user row.
func (ss *SQLiteStore) IncrementUserUsage(ctx context.Context, userID, date string, cap int) (int, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	var used int
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO user_usage (user_id, date, generations_used, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (user_id, date) DO UPDATE
		 SET generations_used = generations_used + 1, updated_at = excluded.updated_at
		 WHERE generations_used < ?
		 RETURNING generations_used`,
		userID, date, now, now, cap,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		current, cerr := ss.UserUsage(ctx, userID, date)
		if cerr != nil {
			return 0, cerr
		}
		return current, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment user usage: %w", err)
	}
	return used, nil
}

// IncrementAnonymousUsage performs the atomic insert-or-increment for an
// anonymous row.
func (ss *SQLiteStore) IncrementAnonymousUsage(ctx context.Context, anonymousID, ip, fingerprint, date string, cap int) (int, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	var used int
	err := ss.db.QueryRowContext(ctx,
		`INSERT INTO anonymous_usage (anonymous_id, ip_address, fingerprint, date, generations_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (anonymous_id, date) DO UPDATE
		 SET generations_used = generations_used + 1, updated_at = excluded.updated_at
		 WHERE generations_used < ?
		 RETURNING generations_used`,
		anonymousID, ip, fingerprint, date, now, now, cap,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		current, cerr := ss.AnonymousUsage(ctx, anonymousID, date)
		if cerr != nil {
			return 0, cerr
		}
		return current, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment anonymous usage: %w", err)
	}
	return used, nil
}

// AppendAttempt inserts an audit log entry.
func (ss *SQLiteStore) AppendAttempt(ctx context.Context, entry *models.AttemptLog) error {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO attempt_log
		 (id, user_id, anonymous_id, ip_address, fingerprint, created_at, success,
		  error_message, limit_type, generations_before, generations_after)
		 VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)`,
		entry.ID, entry.UserID, entry.AnonymousID, entry.IPAddress, entry.Fingerprint,
		entry.CreatedAt, entry.Success, entry.ErrorMessage, entry.LimitType,
		entry.GenerationsBefore, entry.GenerationsAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}

// Attempts returns audit entries created at or after since, newest first.
func (ss *SQLiteStore) Attempts(ctx context.Context, since time.Time, limit int) ([]*models.AttemptLog, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, COALESCE(user_id, ''), COALESCE(anonymous_id, ''), ip_address,
		        COALESCE(fingerprint, ''), created_at, success, COALESCE(error_message, ''),
		        limit_type, generations_before, generations_after
		 FROM attempt_log
		 WHERE created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.AttemptLog
	for rows.Next() {
		var a models.AttemptLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.AnonymousID, &a.IPAddress,
			&a.Fingerprint, &a.CreatedAt, &a.Success, &a.ErrorMessage,
			&a.LimitType, &a.GenerationsBefore, &a.GenerationsAfter); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attempts: %w", err)
	}
	return out, nil
}

// UsageSummary aggregates one day's counters.
func (ss *SQLiteStore) UsageSummary(ctx context.Context, date string) (*models.UsageSummaryResponse, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	summary := &models.UsageSummaryResponse{Date: date}

	var userTotal int
	err := ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(generations_used), 0) FROM user_usage WHERE date = ?`,
		date,
	).Scan(&summary.AuthenticatedUsers, &userTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize user usage: %w", err)
	}

	err = ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(generations_used), 0) FROM anonymous_usage WHERE date = ?`,
		date,
	).Scan(&summary.AnonymousIdentities, &summary.AnonymousGenerations)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize anonymous usage: %w", err)
	}

	summary.TotalGenerations = userTotal + summary.AnonymousGenerations
	return summary, nil
}

// PurgeExpired deletes anonymous usage and anonymous attempt rows older than
// the cutoffs.
func (ss *SQLiteStore) PurgeExpired(ctx context.Context, usageBefore, attemptsBefore time.Time) (int64, error) {
	ctx, cancel := ss.withTimeout(ctx)
	defer cancel()

	var removed int64

	res, err := ss.db.ExecContext(ctx,
		`DELETE FROM anonymous_usage WHERE created_at < ?`, usageBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge anonymous usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = ss.db.ExecContext(ctx,
		`DELETE FROM attempt_log WHERE user_id IS NULL AND created_at < ?`, attemptsBefore)
	if err != nil {
		return removed, fmt.Errorf("failed to purge attempt log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	return removed, nil
}

// Ping verifies the database is reachable.
func (ss *SQLiteStore) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database handle.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
