package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstream/internal/service/outbox"
)

func headerValue(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestOrderFlowPublishesOutboxToKafka(t *testing.T) {
	ctx := context.Background()
	logger := log.WithField("test", t.Name())
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.close() })

	svcs := buildServices(cfg, deps, logger)

	product, err := svcs.products.Create(domain.ProductDraft{
		Name:          "Kettle",
		Price:         decimal.NewFromInt(40),
		StockQuantity: 5,
	})
	require.NoError(t, err)

	order, err := svcs.orders.Create(7, []domain.OrderLine{
		{ProductID: product.ID, Price: product.Price, Quantity: 2},
	})
	require.NoError(t, err)
	require.NoError(t, svcs.orders.Complete(order.ID))

	timeline, err := svcs.orders.Timeline(order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, timeline)

	pending, err := deps.outboxRepo.PullPending(cfg.OutboxBatchSize)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	mockProducer := mocks.NewSyncProducer(t, nil)
	for _, msg := range pending {
		wantTopic := cfg.KafkaTopics.For(msg.AggregateType)
		wantType := msg.EventType
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
			if pm.Topic != wantTopic {
				return fmt.Errorf("topic %q, want %q", pm.Topic, wantTopic)
			}
			if got := headerValue(pm, kafka.HeaderEventType); got != wantType {
				return fmt.Errorf("event type %q, want %q", got, wantType)
			}
			return nil
		})
	}

	producer := kafka.NewProducerFromSync(mockProducer, logger)
	t.Cleanup(func() { _ = producer.Close() })

	worker := outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopics),
		outbox.WithLogger(logger),
		outbox.WithRetryBaseDelay(0),
	)
	require.Equal(t, len(pending), worker.ProcessOnce(ctx))

	stats, err := deps.outboxRepo.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	var sawOrderEvent, sawProductEvent bool
	for _, msg := range pending {
		switch msg.AggregateType {
		case domain.AggregateOrder:
			sawOrderEvent = true
		case domain.AggregateProduct:
			sawProductEvent = true
		}
	}
	require.True(t, sawOrderEvent)
	require.True(t, sawProductEvent)
}
