package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/app"
)

const (
	envHTTPAddr                    = "ORDERSTREAM_HTTP_ADDR"
	envGRPCAddr                    = "ORDERSTREAM_GRPC_ADDR"
	envMetricsAddr                 = "ORDERSTREAM_METRICS_ADDR"
	envStorageDriver               = "ORDERSTREAM_STORAGE_DRIVER"
	envPostgresDSN                 = "ORDERSTREAM_POSTGRES_DSN"
	envPostgresAutoMigrate         = "ORDERSTREAM_POSTGRES_AUTO_MIGRATE"
	envOptimisticLocking           = "ORDERSTREAM_OPTIMISTIC_LOCKING"
	envKafkaBrokers                = "ORDERSTREAM_KAFKA_BROKERS"
	envKafkaOrderTopic             = "ORDERSTREAM_KAFKA_ORDER_TOPIC"
	envKafkaProductTopic           = "ORDERSTREAM_KAFKA_PRODUCT_TOPIC"
	envKafkaDLQTopic               = "ORDERSTREAM_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "ORDERSTREAM_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "ORDERSTREAM_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "ORDERSTREAM_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "ORDERSTREAM_OUTBOX_RETRY_DELAY"
	envOutboxMaxPendingAge         = "ORDERSTREAM_OUTBOX_MAX_PENDING_AGE"
	envIdempotencyTTL              = "ORDERSTREAM_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "ORDERSTREAM_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "ORDERSTREAM_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envLogLevel                    = "ORDERSTREAM_LOG_LEVEL"
	envLogFormat                   = "ORDERSTREAM_LOG_FORMAT"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся default, причина
// возвращается в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	positiveInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envOptimisticLocking, &cfg.OptimisticLocking)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaOrderTopic, &cfg.KafkaTopics.Order)
	str(envKafkaProductTopic, &cfg.KafkaTopics.Product)
	str(envKafkaDLQTopic, &cfg.KafkaTopics.DLQ)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	return cfg, warnings
}

// setupLogger настраивает формат и уровень логирования.
func setupLogger(lookup envLookup) []error {
	var warnings []error

	format, _ := lookup(envLogFormat)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		warnings = append(warnings, fmt.Errorf("%s: unknown format %q", envLogFormat, format))
	}

	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", envLogLevel, err))
		} else {
			log.SetLevel(level)
		}
	}
	return warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid duration %s: %s", value, rule)
	}
	return value, nil
}
