package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/storage/memory"
)

// batchRepo отдаёт заранее заданные результаты DeleteExpired по очереди.
type batchRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	batches []int
	err     error
	limits  []int
}

func (r *batchRepo) DeleteExpired(_ time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits = append(r.limits, limit)
	if r.err != nil {
		return 0, r.err
	}
	if len(r.batches) == 0 {
		return 0, nil
	}
	n := r.batches[0]
	r.batches = r.batches[1:]
	return n, nil
}

func (r *batchRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limits)
}

func TestCleanupWorker_DeletesInBatchesUntilShortBatch(t *testing.T) {
	t.Parallel()

	repo := &batchRepo{batches: []int{2, 2, 1, 2}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, []int{2, 2, 2}, repo.limits)
}

func TestCleanupWorker_PropagatesRepositoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	worker := NewCleanupWorker(&batchRepo{err: boom})

	deleted, err := worker.DeleteExpired(context.Background(), time.Time{})
	require.ErrorIs(t, err, boom)
	require.Zero(t, deleted)
}

func TestCleanupWorker_CancelledContext(t *testing.T) {
	t.Parallel()

	repo := &batchRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCleanupWorker(repo).DeleteExpired(ctx, time.Time{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, repo.calls())
}

func TestCleanupWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := &batchRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestCleanupWorker_NilRepositoryDisablesRun(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run without repository must return immediately")
	}
}

func TestCleanupWorker_UsesClockForCutoff(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	_, err := repo.Reserve("old", "h", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = repo.Reserve("fresh", "h", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	worker := NewCleanupWorker(repo, WithClock(func() time.Time {
		return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	}))

	deleted, err := worker.DeleteExpired(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = repo.Get("fresh")
	require.NoError(t, err, "fresh key must survive")
	_, err = repo.Get("old")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}
