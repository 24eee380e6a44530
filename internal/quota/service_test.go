package quota

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genquota/internal/identity"
	"genquota/internal/models"
	"genquota/internal/storage"
)

var testTime = time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store, err := storage.NewMemoryStore(storage.Config{Type: "memory"})
	require.NoError(t, err)

	svc := NewService(store, models.QuotaConfig{
		AnonymousDailyLimit:     5,
		AuthenticatedDailyLimit: 10,
	}, WithClock(func() time.Time { return testTime }))

	return svc, store
}

func anonIdentity(fingerprint, ip string) identity.Identity {
	return identity.Identity{
		AnonymousID: identity.AnonymousID("test-salt", ip, fingerprint),
		IP:          ip,
		Fingerprint: fingerprint,
	}
}

func authIdentity(userID, ip string) identity.Identity {
	return identity.Identity{
		UserID:      userID,
		IP:          ip,
		Fingerprint: "authfp",
	}
}

func TestCheck_FreshAnonymous(t *testing.T) {
	svc, _ := newTestService(t)

	status, err := svc.Check(context.Background(), anonIdentity("fpA", "203.0.113.7"))
	require.NoError(t, err)

	assert.True(t, status.CanGenerate)
	assert.Equal(t, 0, status.GenerationsUsed)
	assert.Equal(t, 5, status.GenerationsRemaining)
	assert.False(t, status.IsAuthenticated)
	assert.Equal(t, models.LimitTypeAnonymous, status.LimitType)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), status.ResetTime)
}

func TestCheck_FreshAuthenticated(t *testing.T) {
	svc, _ := newTestService(t)

	status, err := svc.Check(context.Background(), authIdentity("user-1", "203.0.113.7"))
	require.NoError(t, err)

	assert.True(t, status.CanGenerate)
	assert.Equal(t, 0, status.GenerationsUsed)
	assert.Equal(t, 10, status.GenerationsRemaining)
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, models.LimitTypeAuthenticated, status.LimitType)
}

func TestCheck_NeverMutates(t *testing.T) {
	svc, store := newTestService(t)
	id := anonIdentity("fpA", "203.0.113.7")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.Check(ctx, id)
		require.NoError(t, err)
	}

	used, err := store.AnonymousUsage(ctx, id.AnonymousID, models.Day(testTime))
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestRecord_SuccessIncrements(t *testing.T) {
	svc, store := newTestService(t)
	id := anonIdentity("fpA", "203.0.113.7")
	ctx := context.Background()

	resp, err := svc.Record(ctx, id, true, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.GenerationsUsed)
	assert.Equal(t, 4, resp.GenerationsRemaining)

	attempts, err := store.Attempts(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, 0, attempts[0].GenerationsBefore)
	assert.Equal(t, 1, attempts[0].GenerationsAfter)
	assert.Equal(t, models.LimitTypeAnonymous, attempts[0].LimitType)
	assert.Equal(t, id.AnonymousID, attempts[0].AnonymousID)
}

func TestRecord_FailedAttemptDoesNotConsumeQuota(t *testing.T) {
	svc, store := newTestService(t)
	id := anonIdentity("fpA", "203.0.113.7")
	ctx := context.Background()

	resp, err := svc.Record(ctx, id, false, "model backend timeout")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.GenerationsUsed)
	assert.Equal(t, 5, resp.GenerationsRemaining)

	// Audited but not counted.
	attempts, err := store.Attempts(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "model backend timeout", attempts[0].ErrorMessage)

	used, err := store.AnonymousUsage(ctx, id.AnonymousID, models.Day(testTime))
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestRecord_RejectedAtCap(t *testing.T) {
	svc, store := newTestService(t)
	id := anonIdentity("fpA", "203.0.113.7")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, id, true, "")
		require.NoError(t, err)
	}

	// Sixth call must be rejected even though the client claims success.
	_, err := svc.Record(ctx, id, true, "")
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, models.ErrorCodeQuotaExceeded, svcErr.Code)
	assert.Equal(t, http.StatusTooManyRequests, svcErr.StatusCode)
	assert.Equal(t, 5, svcErr.Used)

	// The counter is unchanged and the rejection is audited.
	used, err := store.AnonymousUsage(ctx, id.AnonymousID, models.Day(testTime))
	require.NoError(t, err)
	assert.Equal(t, 5, used)

	attempts, err := store.Attempts(ctx, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, attempts, 6)
}

func TestRecord_ConcurrentNoLostUpdates(t *testing.T) {
	svc, store := newTestService(t)
	id := authIdentity("user-1", "203.0.113.7")
	ctx := context.Background()

	const workers = 25

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(ctx, id, true, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	rejected := 0
	for err := range results {
		if err == nil {
			accepted++
			continue
		}
		var svcErr *ServiceError
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, models.ErrorCodeQuotaExceeded, svcErr.Code)
		rejected++
	}

	// Exactly cap accepted, never more and never fewer.
	assert.Equal(t, 10, accepted)
	assert.Equal(t, workers-10, rejected)

	used, err := store.UserUsage(ctx, id.UserID, models.Day(testTime))
	require.NoError(t, err)
	assert.Equal(t, 10, used)
}

func TestCheck_CrossIPCombinedUsage(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	date := models.Day(testTime)

	idA := anonIdentity("fpA", "203.0.113.7")
	idB := anonIdentity("fpB", "203.0.113.7")

	// Two fingerprints on one IP with 3 generations each.
	for i := 0; i < 3; i++ {
		_, err := store.IncrementAnonymousUsage(ctx, idA.AnonymousID, idA.IP, idA.Fingerprint, date, 10)
		require.NoError(t, err)
		_, err = store.IncrementAnonymousUsage(ctx, idB.AnonymousID, idB.IP, idB.Fingerprint, date, 10)
		require.NoError(t, err)
	}

	// Either fingerprint sees the combined IP total.
	for _, id := range []identity.Identity{idA, idB} {
		status, err := svc.Check(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 6, status.GenerationsUsed)
		assert.Equal(t, 0, status.GenerationsRemaining)
		assert.False(t, status.CanGenerate)
	}
}

func TestRecord_CrossIPLimitsSecondFingerprint(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	idA := anonIdentity("fpA", "203.0.113.7")
	idB := anonIdentity("fpB", "203.0.113.7")

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, idA, true, "")
		require.NoError(t, err)
	}

	// The second fingerprint starts from the IP total, not zero.
	status, err := svc.Check(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, 3, status.GenerationsUsed)
	assert.Equal(t, 2, status.GenerationsRemaining)

	// Only two more fit under the shared cap.
	for i := 0; i < 2; i++ {
		_, err := svc.Record(ctx, idB, true, "")
		require.NoError(t, err)
	}

	_, err = svc.Record(ctx, idB, true, "")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, models.ErrorCodeQuotaExceeded, svcErr.Code)
}

func TestRecord_DifferentIPsDoNotAggregate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	idA := anonIdentity("fpA", "203.0.113.7")
	idB := anonIdentity("fpB", "198.51.100.9")

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, idA, true, "")
		require.NoError(t, err)
	}

	status, err := svc.Check(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, 0, status.GenerationsUsed)
	assert.True(t, status.CanGenerate)
}

func TestCheck_AuthenticatedNoCarryOver(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	anon := anonIdentity("fpA", "203.0.113.7")
	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, anon, true, "")
		require.NoError(t, err)
	}

	// Signing in switches to the user-keyed counter; the exhausted
	// anonymous usage does not follow the account.
	auth := authIdentity("user-1", "203.0.113.7")
	status, err := svc.Check(ctx, auth)
	require.NoError(t, err)
	assert.Equal(t, 0, status.GenerationsUsed)
	assert.Equal(t, 10, status.GenerationsRemaining)
	assert.True(t, status.CanGenerate)
}

func TestRecord_FreshDayScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := anonIdentity("fpA", "203.0.113.7")

	status, err := svc.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.GenerationsUsed)
	assert.Equal(t, 5, status.GenerationsRemaining)
	assert.True(t, status.CanGenerate)

	for i := 1; i <= 5; i++ {
		resp, err := svc.Record(ctx, id, true, "")
		require.NoError(t, err)
		assert.Equal(t, i, resp.GenerationsUsed)
	}

	_, err = svc.Record(ctx, id, true, "")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusTooManyRequests, svcErr.StatusCode)

	status, err = svc.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.GenerationsRemaining)
	assert.False(t, status.CanGenerate)
}

func TestRecord_StoreFailureFailsClosed(t *testing.T) {
	store, err := storage.NewMemoryStore(storage.Config{Type: "memory"})
	require.NoError(t, err)
	store.Close()

	svc := NewService(&failingStore{store}, models.QuotaConfig{
		AnonymousDailyLimit:     5,
		AuthenticatedDailyLimit: 10,
	})

	_, err = svc.Record(context.Background(), anonIdentity("fpA", "203.0.113.7"), true, "")
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, models.ErrorCodeUpstreamUnavailable, svcErr.Code)
}

// failingStore errors on every read so fail-closed behavior can be observed.
type failingStore struct {
	storage.UsageStore
}

func (f *failingStore) AnonymousUsage(ctx context.Context, anonymousID, date string) (int, error) {
	return 0, errors.New("store unavailable")
}
