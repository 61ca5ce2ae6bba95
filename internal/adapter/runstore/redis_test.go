package runstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/findajob/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour), mr
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "run-1"))

	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, domain.RunPending, run.State)
	assert.Zero(t, run.Counters)
	assert.False(t, run.Terminal())
}

func TestGetUnknownRun(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))

	for _, state := range []domain.RunState{domain.RunCrawling, domain.RunEnriching, domain.RunDelivering} {
		require.NoError(t, s.SetState(ctx, "run-1", state))
		run, err := s.Get(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, state, run.State)
	}

	require.NoError(t, s.Succeed(ctx, "run-1"))
	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.State)
	assert.True(t, run.Terminal())
}

func TestFailRecordsReason(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))

	require.NoError(t, s.Fail(ctx, "run-1", "cancelled"))
	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Equal(t, "cancelled", run.Error)
}

func TestSetCountersKeepsState(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))
	require.NoError(t, s.SetState(ctx, "run-1", domain.RunEnriching))

	c := domain.Counters{TotalJobs: 3, Enriched: 2, Delivered: 1, EnrichmentFailures: 1}
	require.NoError(t, s.SetCounters(ctx, "run-1", c))

	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, c, run.Counters)
	assert.Equal(t, domain.RunEnriching, run.State)
}

func TestCancelFlag(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))

	cancelled, err := s.Cancelled(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, s.Cancel(ctx, "run-1"))

	cancelled, err = s.Cancelled(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Cancelling does not flip the record; the worker does that when it
	// notices the flag.
	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPending, run.State)
}

func TestCancelUnknownRun(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	err := s.Cancel(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetentionExpiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))
	require.NoError(t, s.SetState(ctx, "run-1", domain.RunSucceeded))

	mr.FastForward(2 * time.Hour)

	_, err := s.Get(ctx, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePreservesTTL(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "run-1"))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, s.SetState(ctx, "run-1", domain.RunCrawling))

	// The update must not restart the retention clock.
	mr.FastForward(45 * time.Minute)
	_, err := s.Get(ctx, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
