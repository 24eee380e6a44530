package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genquota/internal/models"
)

// PostgresStore implements UsageStore using PostgreSQL. The conditional
// increments are single upsert statements guarded by the (identity, date)
// uniqueness constraint, so concurrent recorders for the same identity and
// day serialize on the row and never lose an increment.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore creates a PostgreSQL storage instance and ensures the
// schema exists.
func NewPostgresStore(config Config) (*PostgresStore, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(context.Background(), config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{
		pool:    pool,
		timeout: config.QueryTimeout,
	}

	if err := ps.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	return ps, nil
}

func (ps *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS user_usage (
			user_id TEXT NOT NULL,
			date DATE NOT NULL,
			generations_used INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, date)
		);
		CREATE TABLE IF NOT EXISTS anonymous_usage (
			anonymous_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			date DATE NOT NULL,
			generations_used INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (anonymous_id, date)
		);
		CREATE INDEX IF NOT EXISTS anonymous_usage_ip_date ON anonymous_usage (ip_address, date);
		CREATE TABLE IF NOT EXISTS attempt_log (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			anonymous_id TEXT,
			ip_address TEXT NOT NULL,
			fingerprint TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			success BOOLEAN NOT NULL,
			error_message TEXT,
			limit_type TEXT NOT NULL,
			generations_before INT NOT NULL,
			generations_after INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attempt_log_created_at ON attempt_log (created_at);
	`
	if _, err := ps.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// withTimeout bounds a store operation with the configured query timeout.
func (ps *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ps.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, ps.timeout)
}

// UserUsage returns the user's count for the date, 0 when no row exists.
func (ps *PostgresStore) UserUsage(ctx context.Context, userID, date string) (int, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var used int
	err := ps.pool.QueryRow(ctx,
		`SELECT generations_used FROM user_usage WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user usage: %w", err)
	}
	return used, nil
}

// AnonymousUsage returns the anonymous identity's own count for the date.
func (ps *PostgresStore) AnonymousUsage(ctx context.Context, anonymousID, date string) (int, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var used int
	err := ps.pool.QueryRow(ctx,
		`SELECT generations_used FROM anonymous_usage WHERE anonymous_id = $1 AND date = $2`,
		anonymousID, date,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get anonymous usage: %w", err)
	}
	return used, nil
}

// UsageByIP sums other fingerprints' usage for the same IP, current date only.
func (ps *PostgresStore) UsageByIP(ctx context.Context, ip, date, excludeAnonymousID string) (int, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var total int
	err := ps.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(generations_used), 0) FROM anonymous_usage
		 WHERE ip_address = $1 AND date = $2 AND anonymous_id <> $3`,
		ip, date, excludeAnonymousID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage by ip: %w", err)
	}
	return total, nil
}

// IncrementUserUsage performs the atomic insert-or-increment for a user row.
// The WHERE clause on the conflict update re-validates the cap inside the
// same statement, so a concurrent loser gets no row back and ErrLimitReached.
func (ps *PostgresStore) IncrementUserUsage(ctx context.Context, userID, date string, cap int) (int, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var used int
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO user_usage (user_id, date, generations_used)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, date) DO UPDATE
		 SET generations_used = user_usage.generations_used + 1, updated_at = now()
		 WHERE user_usage.generations_used < $3
		 RETURNING generations_used`,
		userID, date, cap,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		current, cerr := ps.UserUsage(ctx, userID, date)
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
func (ps *PostgresStore) IncrementAnonymousUsage(ctx context.Context, anonymousID, ip, fingerprint, date string, cap int) (int, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var used int
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO anonymous_usage (anonymous_id, ip_address, fingerprint, date, generations_used)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (anonymous_id, date) DO UPDATE
		 SET generations_used = anonymous_usage.generations_used + 1, updated_at = now()
		 WHERE anonymous_usage.generations_used < $5
		 RETURNING generations_used`,
		anonymousID, ip, fingerprint, date, cap,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		current, cerr := ps.AnonymousUsage(ctx, anonymousID, date)
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
func (ps *PostgresStore) AppendAttempt(ctx context.Context, entry *models.AttemptLog) error {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO attempt_log
		 (id, user_id, anonymous_id, ip_address, fingerprint, created_at, success,
		  error_message, limit_type, generations_before, generations_after)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
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
func (ps *PostgresStore) Attempts(ctx context.Context, since time.Time, limit int) ([]*models.AttemptLog, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	rows, err := ps.pool.Query(ctx,
		`SELECT id, COALESCE(user_id, ''), COALESCE(anonymous_id, ''), ip_address,
		        COALESCE(fingerprint, ''), created_at, success, COALESCE(error_message, ''),
		        limit_type, generations_before, generations_after
		 FROM attempt_log
		 WHERE created_at >= $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
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
func (ps *PostgresStore) UsageSummary(ctx context.Context, date string) (*models.UsageSummaryResponse, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	summary := &models.UsageSummaryResponse{Date: date}

	var userTotal int
	err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(generations_used), 0) FROM user_usage WHERE date = $1`,
		date,
	).Scan(&summary.AuthenticatedUsers, &userTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize user usage: %w", err)
	}

	err = ps.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(generations_used), 0) FROM anonymous_usage WHERE date = $1`,
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
func (ps *PostgresStore) PurgeExpired(ctx context.Context, usageBefore, attemptsBefore time.Time) (int64, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	var removed int64

	tag, err := ps.pool.Exec(ctx,
		`DELETE FROM anonymous_usage WHERE created_at < $1`, usageBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge anonymous usage: %w", err)
	}
	removed += tag.RowsAffected()

	tag, err = ps.pool.Exec(ctx,
		`DELETE FROM attempt_log WHERE user_id IS NULL AND created_at < $1`, attemptsBefore)
	if err != nil {
		return removed, fmt.Errorf("failed to purge attempt log: %w", err)
	}
	removed += tag.RowsAffected()

	return removed, nil
}

// Ping verifies the database is reachable.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
