package memory

import (
	"testing"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

func TestOutboxRepository_EnqueueAndPullInOrder(t *testing.T) {
	repo := NewOutboxRepository()

	var ids []string
	for _, eventType := range []string{"OrderCreated", "OrderStatusChanged", "OrderDeleted"} {
		saved, err := repo.Enqueue(domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   "order-1",
			EventType:     eventType,
			Payload:       []byte(`{"order_id":"order-1"}`),
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if saved.ID == "" {
			t.Fatal("expected generated id")
		}
		ids = append(ids, saved.ID)
	}

	pending, err := repo.PullPending(2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Fatalf("messages must be pulled in enqueue order")
	}
}

func TestOutboxRepository_MarkSentAndStats(t *testing.T) {
	repo := NewOutboxRepository()

	first, _ := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateOrder})
	second, _ := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateProduct})

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
	stats, _ = repo.Stats()
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats after marking: %+v", stats)
	}

	if err := repo.MarkFailed("missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}
