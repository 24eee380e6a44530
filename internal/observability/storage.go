package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"genquota/internal/models"
	"genquota/internal/storage"
)

// InstrumentedStorage wraps a storage.UsageStore implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.UsageStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.UsageStore) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("genquota/storage")
	meter := otel.Meter("genquota/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) UserUsage(ctx context.Context, userID, date string) (int, error) {
	ctx, span := s.startSpan(ctx, "UserUsage", attribute.String("date", date))
	start := time.Now()
	result, err := s.inner.UserUsage(ctx, userID, date)
	s.record(ctx, span, "UserUsage", start, err)
	return result, err
}

func (s *InstrumentedStorage) AnonymousUsage(ctx context.Context, anonymousID, date string) (int, error) {
	ctx, span := s.startSpan(ctx, "AnonymousUsage", attribute.String("date", date))
	start := time.Now()
	result, err := s.inner.AnonymousUsage(ctx, anonymousID, date)
	s.record(ctx, span, "AnonymousUsage", start, err)
	return result, err
}

func (s *InstrumentedStorage) UsageByIP(ctx context.Context, ip, date, excludeAnonymousID string) (int, error) {
	ctx, span := s.startSpan(ctx, "UsageByIP", attribute.String("date", date))
	start := time.Now()
	result, err := s.inner.UsageByIP(ctx, ip, date, excludeAnonymousID)
	s.record(ctx, span, "UsageByIP", start, err)
	return result, err
}

func (s *InstrumentedStorage) IncrementUserUsage(ctx context.Context, userID, date string, limit int) (int, error) {
	ctx, span := s.startSpan(ctx, "IncrementUserUsage",
		attribute.String("date", date),
		attribute.Int("limit", limit),
	)
	start := time.Now()
	result, err := s.inner.IncrementUserUsage(ctx, userID, date, limit)
	s.record(ctx, span, "IncrementUserUsage", start, err)
	return result, err
}

func (s *InstrumentedStorage) IncrementAnonymousUsage(ctx context.Context, anonymousID, ip, fingerprint, date string, limit int) (int, error) {
	ctx, span := s.startSpan(ctx, "IncrementAnonymousUsage",
		attribute.String("date", date),
		attribute.Int("limit", limit),
	)
	start := time.Now()
	result, err := s.inner.IncrementAnonymousUsage(ctx, anonymousID, ip, fingerprint, date, limit)
	s.record(ctx, span, "IncrementAnonymousUsage", start, err)
	return result, err
}

func (s *InstrumentedStorage) AppendAttempt(ctx context.Context, entry *models.AttemptLog) error {
	ctx, span := s.startSpan(ctx, "AppendAttempt",
		attribute.String("limit_type", entry.LimitType),
		attribute.Bool("success", entry.Success),
	)
	start := time.Now()
	err := s.inner.AppendAttempt(ctx, entry)
	s.record(ctx, span, "AppendAttempt", start, err)
	return err
}

func (s *InstrumentedStorage) Attempts(ctx context.Context, since time.Time, limit int) ([]*models.AttemptLog, error) {
	ctx, span := s.startSpan(ctx, "Attempts", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.Attempts(ctx, since, limit)
	s.record(ctx, span, "Attempts", start, err)
	return result, err
}

func (s *InstrumentedStorage) UsageSummary(ctx context.Context, date string) (*models.UsageSummaryResponse, error) {
	ctx, span := s.startSpan(ctx, "UsageSummary", attribute.String("date", date))
	start := time.Now()
	result, err := s.inner.UsageSummary(ctx, date)
	s.record(ctx, span, "UsageSummary", start, err)
	return result, err
}

func (s *InstrumentedStorage) PurgeExpired(ctx context.Context, usageBefore, attemptsBefore time.Time) (int64, error) {
	ctx, span := s.startSpan(ctx, "PurgeExpired")
	start := time.Now()
	result, err := s.inner.PurgeExpired(ctx, usageBefore, attemptsBefore)
	s.record(ctx, span, "PurgeExpired", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
