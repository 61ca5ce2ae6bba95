// Package runstore tracks pipeline run state in Redis. The broker already
// requires Redis, so run records and cancellation flags live next to the
// queue with a bounded retention window instead of a second datastore.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/findajob/internal/domain"
)

const (
	runKeyPrefix    = "findajob:run:"
	cancelKeySuffix = ":cancel"
)

// Store implements domain.RunStore.
type Store struct {
	rdb       *redis.Client
	retention time.Duration
}

// New wraps an existing Redis client. Records expire after retention; a
// status query past that window reports not found.
func New(rdb *redis.Client, retention time.Duration) *Store {
	return &Store{rdb: rdb, retention: retention}
}

func runKey(runID string) string    { return runKeyPrefix + runID }
func cancelKey(runID string) string { return runKeyPrefix + runID + cancelKeySuffix }

// Create writes the initial pending record.
func (s *Store) Create(ctx domain.Context, runID string) error {
	run := domain.Run{RunID: runID, State: domain.RunPending}
	return s.write(ctx, run, s.retention)
}

// Get returns the run or ErrNotFound once it has expired or never existed.
func (s *Store) Get(ctx domain.Context, runID string) (domain.Run, error) {
	raw, err := s.rdb.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Run{}, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("%w: get run %s: %v", domain.ErrInternal, runID, err)
	}
	var run domain.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return domain.Run{}, fmt.Errorf("%w: decode run %s: %v", domain.ErrInternal, runID, err)
	}
	return run, nil
}

// SetState moves the run to state, keeping counters and error intact.
func (s *Store) SetState(ctx domain.Context, runID string, state domain.RunState) error {
	return s.update(ctx, runID, func(run *domain.Run) {
		run.State = state
	})
}

// Fail terminally marks the run failed with reason.
func (s *Store) Fail(ctx domain.Context, runID string, reason string) error {
	return s.update(ctx, runID, func(run *domain.Run) {
		run.State = domain.RunFailed
		run.Error = reason
	})
}

// Succeed terminally marks the run succeeded.
func (s *Store) Succeed(ctx domain.Context, runID string) error {
	return s.update(ctx, runID, func(run *domain.Run) {
		run.State = domain.RunSucceeded
	})
}

// SetCounters replaces the progress counters.
func (s *Store) SetCounters(ctx domain.Context, runID string, c domain.Counters) error {
	return s.update(ctx, runID, func(run *domain.Run) {
		run.Counters = c
	})
}

// Cancel raises the cancellation flag. The worker polls it between jobs; the
// run record itself transitions when the worker notices.
func (s *Store) Cancel(ctx domain.Context, runID string) error {
	if _, err := s.Get(ctx, runID); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, cancelKey(runID), "1", s.retention).Err(); err != nil {
		return fmt.Errorf("%w: cancel run %s: %v", domain.ErrInternal, runID, err)
	}
	return nil
}

// Cancelled reports whether Cancel has been called for the run.
func (s *Store) Cancelled(ctx domain.Context, runID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, cancelKey(runID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: cancelled run %s: %v", domain.ErrInternal, runID, err)
	}
	return n > 0, nil
}

func (s *Store) update(ctx domain.Context, runID string, mutate func(*domain.Run)) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	mutate(&run)
	return s.write(ctx, run, redis.KeepTTL)
}

func (s *Store) write(ctx domain.Context, run domain.Run, ttl time.Duration) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("%w: encode run %s: %v", domain.ErrInternal, run.RunID, err)
	}
	if err := s.rdb.Set(ctx, runKey(run.RunID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: write run %s: %v", domain.ErrInternal, run.RunID, err)
	}
	return nil
}

var _ domain.RunStore = (*Store)(nil)
