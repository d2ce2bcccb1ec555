package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

// Topics по умолчанию.
const (
	TopicOrderEvents     = "orderstream.order.events"
	TopicProductEvents   = "orderstream.product.events"
	TopicDeadLetterQueue = "orderstream.dlq"
)

// Заголовки Kafka-сообщений, которые выставляет сервис.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Topics задаёт маршрутизацию событий по типу агрегата.
type Topics struct {
	Order   string
	Product string
	DLQ     string
}

// DefaultTopics возвращает topics по умолчанию.
func DefaultTopics() Topics {
	return Topics{
		Order:   TopicOrderEvents,
		Product: TopicProductEvents,
		DLQ:     TopicDeadLetterQueue,
	}
}

// For возвращает topic для типа агрегата. Неизвестные типы уходят в topic заказов.
func (t Topics) For(aggregateType string) string {
	if aggregateType == domain.AggregateProduct && t.Product != "" {
		return t.Product
	}
	if t.Order != "" {
		return t.Order
	}
	return TopicOrderEvents
}

// Envelope — формат сообщения, публикуемого из outbox.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   time.Now().UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DLQPayload — содержимое payload сообщения, отправленного outbox worker в DLQ.
type DLQPayload struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}
