// Package quota implements the daily generation quota decision core: given a
// resolved caller identity and today's durable counters, decide admit or
// deny, and record accepted attempts exactly once.
//
// Anonymous callers are capped by the summed usage of all fingerprints
// sharing their IP that day, not just their own counter, which closes the
// rotate-fingerprint-keep-IP loophole.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"genquota/internal/identity"
	"genquota/internal/models"
	"genquota/internal/storage"
)

// Service enforces daily generation quotas against a UsageStore.
type Service struct {
	store storage.UsageStore
	cfg   models.QuotaConfig
	now   func() time.Time
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithClock overrides the service clock. Used in tests to pin the date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a quota service with the given storage backend and caps.
func NewService(store storage.UsageStore, cfg models.QuotaConfig, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cap returns the applicable daily cap and limit type for an identity.
func (s *Service) cap(id identity.Identity) (int, string) {
	if id.IsAuthenticated() {
		return s.cfg.AuthenticatedDailyLimit, models.LimitTypeAuthenticated
	}
	return s.cfg.AnonymousDailyLimit, models.LimitTypeAnonymous
}

// currentUsage derives the identity's effective usage for the date. For
// anonymous identities this is the IP-wide sum for the day: the caller's own
// row plus every other fingerprint's row on the same IP. The anonymous id is
// hashed from the IP, so the own row always belongs to the current IP and
// the sum is the total the IP has consumed. Computed the same way at check
// time and record time.
func (s *Service) currentUsage(ctx context.Context, id identity.Identity, date string) (int, error) {
	if id.IsAuthenticated() {
		return s.store.UserUsage(ctx, id.UserID, date)
	}

	own, err := s.store.AnonymousUsage(ctx, id.AnonymousID, date)
	if err != nil {
		return 0, err
	}
	others, err := s.store.UsageByIP(ctx, id.IP, date, id.AnonymousID)
	if err != nil {
		return 0, err
	}
	return own + others, nil
}

// Check reports the caller's quota state. Never mutates stored counters.
func (s *Service) Check(ctx context.Context, id identity.Identity) (*models.QuotaStatusResponse, error) {
	now := s.now()
	date := models.Day(now)

	used, err := s.currentUsage(ctx, id, date)
	if err != nil {
		return nil, NewUpstreamUnavailableError("failed to read usage", err)
	}

	cap, limitType := s.cap(id)
	remaining := cap - used
	if remaining < 0 {
		remaining = 0
	}

	return &models.QuotaStatusResponse{
		CanGenerate:          used < cap,
		GenerationsUsed:      used,
		GenerationsRemaining: remaining,
		ResetTime:            models.NextMidnightUTC(now),
		IsAuthenticated:      id.IsAuthenticated(),
		LimitType:            limitType,
	}, nil
}

// Record logs a generation attempt. A failed downstream attempt is audited
// but never consumes quota. A successful attempt re-validates the cap and
// then applies the store's atomic conditional increment; the quota boundary
// is enforced here even when an earlier Check looked favorable.
func (s *Service) Record(ctx context.Context, id identity.Identity, success bool, errorDetail string) (*models.RecordResponse, error) {
	now := s.now()
	date := models.Day(now)
	cap, limitType := s.cap(id)

	used, err := s.currentUsage(ctx, id, date)
	if err != nil {
		// Fail closed: quota is never granted on an uncertain outcome.
		return nil, NewUpstreamUnavailableError("failed to read usage", err)
	}

	if !success {
		s.audit(ctx, id, now, false, errorDetail, limitType, used, used)
		remaining := cap - used
		if remaining < 0 {
			remaining = 0
		}
		return &models.RecordResponse{
			Success:              true,
			GenerationsUsed:      used,
			GenerationsRemaining: remaining,
		}, nil
	}

	if used >= cap {
		// Last line of defense against concurrent over-admission.
		s.audit(ctx, id, now, false, "quota exceeded at record time", limitType, used, used)
		return nil, NewQuotaExceededError(used)
	}

	var newUsed int
	if id.IsAuthenticated() {
		newUsed, err = s.store.IncrementUserUsage(ctx, id.UserID, date, cap)
	} else {
		newUsed, err = s.store.IncrementAnonymousUsage(ctx, id.AnonymousID, id.IP, id.Fingerprint, date, cap)
	}
	if errors.Is(err, storage.ErrLimitReached) {
		// Lost the race to a concurrent recorder.
		s.audit(ctx, id, now, false, "quota exceeded at record time", limitType, newUsed, newUsed)
		return nil, NewQuotaExceededError(newUsed)
	}
	if err != nil {
		return nil, NewUpstreamUnavailableError("failed to record usage", err)
	}

	s.audit(ctx, id, now, true, errorDetail, limitType, used, newUsed)

	remaining := cap - newUsed
	if remaining < 0 {
		remaining = 0
	}
	return &models.RecordResponse{
		Success:              true,
		GenerationsUsed:      newUsed,
		GenerationsRemaining: remaining,
	}, nil
}

// audit appends an attempt log entry. Audit failures are logged but do not
// fail the request; the counter update is the authoritative state.
func (s *Service) audit(ctx context.Context, id identity.Identity, at time.Time, success bool, errMsg, limitType string, before, after int) {
	entry := &models.AttemptLog{
		ID:                uuid.New().String(),
		UserID:            id.UserID,
		AnonymousID:       id.AnonymousID,
		IPAddress:         id.IP,
		Fingerprint:       id.Fingerprint,
		CreatedAt:         at.UTC(),
		Success:           success,
		ErrorMessage:      errMsg,
		LimitType:         limitType,
		GenerationsBefore: before,
		GenerationsAfter:  after,
	}
	if err := s.store.AppendAttempt(ctx, entry); err != nil {
		slog.Error("failed to append attempt log entry", "error", err, "limit_type", limitType)
	}
}
