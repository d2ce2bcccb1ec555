package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	brokersEnv         = "ORDERSTREAM_KAFKA_BROKERS"
)

var errBrokersRequired = errors.New("kafka brokers are required (-brokers or " + brokersEnv + ")")

type envLookup func(string) (string, bool)

type config struct {
	brokers     []string
	sourceTopic string
	topics      kafka.Topics
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fail("dlq replay failed: %v", err)
	}
}

// parseConfig разбирает флаги; брокеры без флага берутся из окружения.
func parseConfig(args []string, lookup envLookup) (config, error) {
	cfg := config{
		topics:      kafka.DefaultTopics(),
		limit:       defaultReplayLimit,
		idleTimeout: defaultIdleTimeout,
	}

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.Func("brokers", "Kafka brokers, comma-separated (fallback: "+brokersEnv+")", func(raw string) error {
		cfg.brokers = parseBrokers(raw)
		return nil
	})
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.topics.Order, "order-topic", cfg.topics.Order, "replay topic for order events")
	fs.StringVar(&cfg.topics.Product, "product-topic", cfg.topics.Product, "replay topic for product events")
	fs.IntVar(&cfg.limit, "limit", cfg.limit, "max messages to scan across partitions")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; dry-run otherwise")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", cfg.idleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if len(cfg.brokers) == 0 {
		if raw, ok := lookup(brokersEnv); ok {
			cfg.brokers = parseBrokers(raw)
		}
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch {
	case len(c.brokers) == 0:
		return errBrokersRequired
	case strings.TrimSpace(c.sourceTopic) == "":
		return errors.New("source-topic is required")
	case strings.TrimSpace(c.topics.Order) == "" || strings.TrimSpace(c.topics.Product) == "":
		return errors.New("order-topic and product-topic are required")
	case c.sourceTopic == c.topics.Order || c.sourceTopic == c.topics.Product:
		return errors.New("source-topic must differ from replay topics")
	case c.limit <= 0:
		return errors.New("limit must be > 0")
	case c.idleTimeout <= 0:
		return errors.New("idle-timeout must be > 0")
	}
	return nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"brokers":       strings.Join(cfg.brokers, ","),
		"source_topic":  cfg.sourceTopic,
		"order_topic":   cfg.topics.Order,
		"product_topic": cfg.topics.Product,
		"limit":         cfg.limit,
		"execute":       cfg.execute,
	}).Info("starting dlq replay")

	deps, err := dialKafka(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	return runReplay(ctx, cfg, deps.client, deps.consumer, deps.producer)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
