package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"genquota/internal/models"
)

// MemoryStore implements UsageStore using in-memory data structures.
// This provider is ideal for development and testing; data is lost on
// restart. All operations hold the store mutex, which makes the
// conditional increments trivially atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	userRows map[string]*models.DailyUsage // key: userID + "|" + date
	anonRows map[string]*models.DailyUsage // key: anonymousID + "|" + date
	attempts []*models.AttemptLog
}

// NewMemoryStore creates a new memory-based usage store.
func NewMemoryStore(_ Config) (*MemoryStore, error) {
	return &MemoryStore{
		userRows: make(map[string]*models.DailyUsage),
		anonRows: make(map[string]*models.DailyUsage),
	}, nil
}

func rowKey(id, date string) string { return id + "|" + date }

// UserUsage returns the user's count for the date, 0 when absent.
func (m *MemoryStore) UserUsage(_ context.Context, userID, date string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if row, ok := m.userRows[rowKey(userID, date)]; ok {
		return row.GenerationsUsed, nil
	}
	return 0, nil
}

// AnonymousUsage returns the anonymous identity's own count for the date.
func (m *MemoryStore) AnonymousUsage(_ context.Context, anonymousID, date string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if row, ok := m.anonRows[rowKey(anonymousID, date)]; ok {
		return row.GenerationsUsed, nil
	}
	return 0, nil
}

// UsageByIP sums other fingerprints' counts for the same IP and date.
func (m *MemoryStore) UsageByIP(_ context.Context, ip, date, excludeAnonymousID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, row := range m.anonRows {
		if row.Date != date || row.IPAddress != ip {
			continue
		}
		if row.AnonymousID == excludeAnonymousID {
			continue
		}
		total += row.GenerationsUsed
	}
	return total, nil
}

// IncrementUserUsage inserts or increments the user's daily row while below cap.
func (m *MemoryStore) IncrementUserUsage(_ context.Context, userID, date string, cap int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rowKey(userID, date)
	row, ok := m.userRows[key]
	if !ok {
		if cap <= 0 {
			return 0, ErrLimitReached
		}
		now := time.Now().UTC()
		m.userRows[key] = &models.DailyUsage{
			UserID:          userID,
			Date:            date,
			GenerationsUsed: 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return 1, nil
	}

	if row.GenerationsUsed >= cap {
		return row.GenerationsUsed, ErrLimitReached
	}
	row.GenerationsUsed++
	row.UpdatedAt = time.Now().UTC()
	return row.GenerationsUsed, nil
}

// IncrementAnonymousUsage inserts or increments the anonymous daily row while below cap.
func (m *MemoryStore) IncrementAnonymousUsage(_ context.Context, anonymousID, ip, fingerprint, date string, cap int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rowKey(anonymousID, date)
	row, ok := m.anonRows[key]
	if !ok {
		if cap <= 0 {
			return 0, ErrLimitReached
		}
		now := time.Now().UTC()
		m.anonRows[key] = &models.DailyUsage{
			AnonymousID:     anonymousID,
			IPAddress:       ip,
			Fingerprint:     fingerprint,
			Date:            date,
			GenerationsUsed: 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return 1, nil
	}

	if row.GenerationsUsed >= cap {
		return row.GenerationsUsed, ErrLimitReached
	}
	row.GenerationsUsed++
	row.UpdatedAt = time.Now().UTC()
	return row.GenerationsUsed, nil
}

// AppendAttempt stores a copy of the audit entry.
func (m *MemoryStore) AppendAttempt(_ context.Context, entry *models.AttemptLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entryCopy := *entry
	m.attempts = append(m.attempts, &entryCopy)
	return nil
}

// Attempts returns audit entries created at or after since, newest first.
func (m *MemoryStore) Attempts(_ context.Context, since time.Time, limit int) ([]*models.AttemptLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.AttemptLog
	for _, a := range m.attempts {
		if a.CreatedAt.Before(since) {
			continue
		}
		entryCopy := *a
		out = append(out, &entryCopy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UsageSummary aggregates one day's counters.
func (m *MemoryStore) UsageSummary(_ context.Context, date string) (*models.UsageSummaryResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := &models.UsageSummaryResponse{Date: date}
	for _, row := range m.userRows {
		if row.Date != date {
			continue
		}
		summary.AuthenticatedUsers++
		summary.TotalGenerations += row.GenerationsUsed
	}
	for _, row := range m.anonRows {
		if row.Date != date {
			continue
		}
		summary.AnonymousIdentities++
		summary.TotalGenerations += row.GenerationsUsed
		summary.AnonymousGenerations += row.GenerationsUsed
	}
	return summary, nil
}

// PurgeExpired removes anonymous usage rows and anonymous attempt entries
// older than the given cutoffs.
func (m *MemoryStore) PurgeExpired(_ context.Context, usageBefore, attemptsBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, row := range m.anonRows {
		if row.CreatedAt.Before(usageBefore) {
			delete(m.anonRows, key)
			removed++
		}
	}

	kept := m.attempts[:0]
	for _, a := range m.attempts {
		if a.UserID == "" && a.CreatedAt.Before(attemptsBefore) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.attempts = kept

	return removed, nil
}

// Ping always succeeds for memory storage.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for memory storage.
func (m *MemoryStore) Close() error {
	return nil
}
