package kafka

import (
	"fmt"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Topic выбирается по типу агрегата либо фиксирован (для DLQ).
type OutboxTopicPublisher struct {
	producer *Producer
	topics   Topics
	fixed    string
}

// NewOutboxPublisher создаёт publisher, маршрутизирующий события заказов и товаров по своим topics.
func NewOutboxPublisher(producer *Producer, topics Topics) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, topics: topics}
}

// NewDLQPublisher создаёт publisher, отправляющий всё в один topic.
func NewDLQPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &OutboxTopicPublisher{producer: producer, fixed: topic}
}

// TopicFor возвращает topic, в который уйдёт событие агрегата.
func (p *OutboxTopicPublisher) TopicFor(aggregateType string) string {
	if p.fixed != "" {
		return p.fixed
	}
	return p.topics.For(aggregateType)
}

// Publish отправляет сообщение в Kafka, ключ — идентификатор агрегата.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event)
	return p.producer.PublishJSON(p.TopicFor(event.AggregateType), envelope.Key(), envelope, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
