// Package retention runs the background sweep that removes expired anonymous
// usage rows and old anonymous audit entries. Authenticated rows are kept;
// they belong to real accounts and are cheap to store.
package retention

import (
	"context"
	"log/slog"
	"time"

	"genquota/internal/models"
	"genquota/internal/storage"
)

// Sweeper periodically purges expired rows from the usage store.
type Sweeper struct {
	store storage.UsageStore
	cfg   models.RetentionConfig
	done  chan struct{}
}

// NewSweeper creates a sweeper. Call Start to begin sweeping and Close to
// stop it.
func NewSweeper(store storage.UsageStore, cfg models.RetentionConfig) *Sweeper {
	return &Sweeper{
		store: store,
		cfg:   cfg,
		done:  make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine. An initial sweep runs
// immediately so restarts don't postpone overdue cleanup by a full interval.
func (s *Sweeper) Start() {
	if !s.cfg.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		s.sweep()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Close stops the sweep loop.
func (s *Sweeper) Close() {
	close(s.done)
}

// sweep runs one purge pass. Failures are logged and retried on the next
// tick; retention is best-effort by nature.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()
	usageBefore := now.AddDate(0, 0, -s.cfg.UsageDays)
	attemptsBefore := now.AddDate(0, 0, -s.cfg.AttemptDays)

	removed, err := s.store.PurgeExpired(ctx, usageBefore, attemptsBefore)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}

	if removed > 0 {
		slog.Info("Retention sweep completed",
			"removed", removed,
			"usage_cutoff", usageBefore.Format(models.DateFormat),
			"attempt_cutoff", attemptsBefore.Format(models.DateFormat))
	}
}
