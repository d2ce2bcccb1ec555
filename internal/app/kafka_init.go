package app

import (
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/messaging/kafka"
)

var newSyncProducer = func(brokers []string) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, kafka.NewProducerConfig())
}

// kafkaRuntime — producer и publishers для outbox worker.
type kafkaRuntime struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
}

// initKafka подключается к брокерам, если они заданы.
// Пустой список брокеров возвращает nil, nil: сервис работает без публикации.
func initKafka(cfg Config, logger *log.Entry) (*kafkaRuntime, error) {
	brokers := parseBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	syncProducer, err := newSyncProducer(brokers)
	if err != nil {
		return nil, err
	}
	producer := kafka.NewProducerFromSync(syncProducer, logger.WithField("component", "kafka-producer"))

	logger.WithFields(log.Fields{
		"brokers":       brokers,
		"order_topic":   cfg.KafkaTopics.Order,
		"product_topic": cfg.KafkaTopics.Product,
		"dlq_topic":     cfg.KafkaTopics.DLQ,
	}).Info("kafka producer initialized")

	return &kafkaRuntime{
		producer:  producer,
		publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaTopics),
		dlq:       kafka.NewDLQPublisher(producer, cfg.KafkaTopics.DLQ),
	}, nil
}

// closeKafka закрывает producer; nil безопасен.
func closeKafka(rt *kafkaRuntime, logger *log.Entry) {
	if rt == nil || rt.producer == nil {
		return
	}
	if err := rt.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
