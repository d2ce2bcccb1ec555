package domain

import "time"

// Типы агрегатов, чьи события уходят через outbox.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// OutboxMessage — доменное событие, ожидающее публикации.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats — размер и возраст очереди неопубликованных событий.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OldestAge возвращает возраст самого старого pending-события или 0, если очередь пуста.
func (s OutboxStats) OldestAge(now time.Time) time.Duration {
	if s.PendingCount == 0 || s.OldestPendingAt.IsZero() {
		return 0
	}
	return max(now.Sub(s.OldestPendingAt), 0)
}

// OutboxRepository хранит события до публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit событий в порядке создания.
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher доставляет событие во внешний брокер.
// Повторная доставка того же события допустима.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}
