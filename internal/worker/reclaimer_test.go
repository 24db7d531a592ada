package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/observability"
	"github.com/spec-kit/crm-admin/internal/repository"
)

type flakyStore struct {
	repository.RefreshTokenRepository
	calls atomic.Int32
	err   error
	panic bool
}

func (s *flakyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return 0, s.err
	}
	return 2, nil
}

func TestReclaimer_RunOnceDeletesOnlyExpired(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repository.NewRedisRefreshTokenRepository(client, "test:")
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := []*domain.RefreshToken{
		{Token: "old-1", UserID: "u1", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{Token: "old-2", UserID: "u2", ExpiresAt: now.Add(-time.Second), CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{Token: "edge", UserID: "u1", ExpiresAt: now, CreatedAt: now.Add(-7 * 24 * time.Hour)},
		{Token: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	}
	for _, row := range rows {
		require.NoError(t, store.Create(ctx, row))
	}

	core, logs := observer.New(zapcore.InfoLevel)
	metrics := observability.NewMetrics()
	r := NewReclaimer(store, "@daily", zap.New(core), metrics, WithClock(func() time.Time { return now }))

	deleted, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	_, err = store.GetByToken(ctx, "live")
	assert.NoError(t, err)
	for _, token := range []string{"old-1", "edge"} {
		_, err := store.GetByToken(ctx, token)
		assert.ErrorIs(t, err, repository.ErrNotFound, token)
	}

	entries := logs.FilterMessage("expired refresh tokens reclaimed").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].ContextMap()["deleted"])

	deleted, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestReclaimer_FailureIsLoggedAndReturned(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := &flakyStore{err: errors.New("connection refused")}
	r := NewReclaimer(store, "@daily", zap.New(core), nil)

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("refresh token reclamation failed").FilterLevelExact(zapcore.ErrorLevel).Len())

	store.err = nil
	deleted, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
}

func TestReclaimer_InvalidSchedule(t *testing.T) {
	r := NewReclaimer(&flakyStore{}, "not a schedule", nil, nil)
	assert.Error(t, r.Start())
	assert.NoError(t, r.Stop(context.Background()))
}

func TestReclaimer_ScheduledRunsSurviveFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := &flakyStore{panic: true}
	r := NewReclaimer(store, "@every 1s", zap.New(core), nil)

	require.NoError(t, r.Start())
	require.Error(t, r.Start())

	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.GreaterOrEqual(t, logs.FilterMessage("panic").Len(), 1)
}

func TestStartAuditWorker_Nil(t *testing.T) {
	assert.NotPanics(t, func() { StartAuditWorker(nil) })
}
