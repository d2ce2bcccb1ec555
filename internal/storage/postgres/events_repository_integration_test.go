package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

func TestOutboxRepository_Flow(t *testing.T) {
	store := openTestStore(t)
	repo := NewOutboxRepository(store)

	base := time.Now().UTC().Round(time.Microsecond)
	first, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"id":"order-1"}`),
		CreatedAt:     base.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.Enqueue(domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: domain.AggregateProduct,
		AggregateID:   "product-1",
		EventType:     domain.EventProductRestocked,
		Payload:       []byte(`{"quantity":3}`),
		CreatedAt:     base,
	})
	require.NoError(t, err)
	require.Equal(t, "outbox-fixed-id", second.ID)

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.Equal(first.CreatedAt))

	pending, err := repo.PullPending(1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
	require.JSONEq(t, `{"id":"order-1"}`, string(pending[0].Payload))

	require.NoError(t, repo.MarkSent(first.ID))
	require.NoError(t, repo.MarkFailed(second.ID))
	require.ErrorIs(t, repo.MarkSent("missing"), domain.ErrOutboxPublish)

	pending, err = repo.PullPending(0)
	require.NoError(t, err)
	require.Empty(t, pending)

	stats, err = repo.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestTimelineRepository_AppendAndList(t *testing.T) {
	store := openTestStore(t)
	repo := NewTimelineRepository(store)

	occurred := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID:  "order-1",
		Type:     domain.EventOrderCreated,
		Status:   domain.OrderStatusPending,
		Occurred: occurred,
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID: "order-1",
		Type:    domain.EventOrderStatusChanged,
		Status:  domain.OrderStatusCancelled,
		Reason:  "cancel",
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: "order-2", Type: domain.EventOrderCreated}))

	events, err := repo.List("order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventOrderCreated, events[0].Type)
	require.True(t, events[0].Occurred.Equal(occurred))
	require.Equal(t, domain.OrderStatusCancelled, events[1].Status)
	require.Equal(t, "cancel", events[1].Reason)
	require.False(t, events[1].Occurred.IsZero())

	events, err = repo.List("missing")
	require.NoError(t, err)
	require.NotNil(t, events)
	require.Empty(t, events)
}

func TestIdempotencyRepository_Flow(t *testing.T) {
	store := openTestStore(t)
	repo := NewIdempotencyRepository(store)

	expiresAt := time.Now().UTC().Add(time.Hour)
	record, err := repo.Reserve("key-1", "hash-a", expiresAt)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, record.Status)

	_, err = repo.Reserve("key-1", "hash-a", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	existing, err := repo.Reserve("key-1", "hash-b", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	require.Equal(t, "hash-a", existing.RequestHash)

	require.NoError(t, repo.Complete("key-1", domain.IdempotencyResponse{StatusCode: 201, Body: []byte(`{"id":"o-1"}`)}))
	got, err := repo.Get("key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.Response.StatusCode)
	require.JSONEq(t, `{"id":"o-1"}`, string(got.Response.Body))

	_, err = repo.Reserve("key-3", "hash", expiresAt)
	require.NoError(t, err)
	require.NoError(t, repo.Complete("key-3", domain.IdempotencyResponse{StatusCode: 503}))
	got, err = repo.Get("key-3")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Empty(t, got.Response.Body)

	require.ErrorIs(t, repo.Complete("missing", domain.IdempotencyResponse{StatusCode: 500}), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Reserve(" ", "hash", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.Reserve("key-2", " ", expiresAt)
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRepository_ExpiredKeys(t *testing.T) {
	store := openTestStore(t)
	repo := NewIdempotencyRepository(store)

	past := time.Now().UTC().Add(-time.Minute)
	for _, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.Reserve(key, "hash", past)
		require.NoError(t, err)
	}
	_, err := repo.Reserve("fresh", "hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	record, err := repo.Reserve("old-3", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err, "expired key must be reusable")
	require.Equal(t, "hash-new", record.RequestHash)

	deleted, err := repo.DeleteExpired(time.Time{}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	deleted, err = repo.DeleteExpired(time.Time{}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = repo.Get("fresh")
	require.NoError(t, err)
	_, err = repo.Get("old-3")
	require.NoError(t, err)
}
