package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderstream/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	OptimisticLocking   bool

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает публикацию.
	KafkaBrokers string
	KafkaTopics  kafka.Topics

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxRetryMaxDelay time.Duration
	// OutboxMaxPendingAge — возраст самого старого pending-события, после которого /healthz отвечает degraded.
	OutboxMaxPendingAge time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ReadinessInterval time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopics: kafka.DefaultTopics(),

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		OutboxRetryMaxDelay: 2 * time.Second,
		OutboxMaxPendingAge: 5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ReadinessInterval: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Validate проверяет согласованность настроек до запуска.
func (c Config) Validate() error {
	var errs []error

	for name, addr := range map[string]string{"http": c.HTTPAddr, "grpc": c.GRPCAddr, "metrics": c.MetricsAddr} {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, fmt.Errorf("%s address is required", name))
		}
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.KafkaBrokers != "" {
		if len(parseBrokers(c.KafkaBrokers)) == 0 {
			errs = append(errs, errors.New("kafka brokers list is empty"))
		}
		if c.KafkaTopics.Order == "" || c.KafkaTopics.Product == "" || c.KafkaTopics.DLQ == "" {
			errs = append(errs, errors.New("kafka topics must not be empty"))
		}
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}

	return errors.Join(errs...)
}
