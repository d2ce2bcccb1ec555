package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/messaging/kafka"
)

func dlqRecord(t *testing.T, aggregateType, aggregateID string, payload any) []byte {
	t.Helper()

	inner := map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event_type":     "order.status_changed",
		"publish_error":  "timeout",
	}
	if payload != nil {
		inner["payload"] = payload
	}
	raw, err := json.Marshal(map[string]any{
		"id":             "dlq-1",
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event_type":     "order.status_changed",
		"payload":        inner,
	})
	if err != nil {
		t.Fatalf("marshal dlq record: %v", err)
	}
	return raw
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("unexpected brokers count: got=%d want=2", len(brokers))
	}
	if brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
	if got := parseBrokers(" , "); len(got) != 0 {
		t.Fatalf("expected no brokers, got %+v", got)
	}
}

func envOf(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-limit=5"}, envOf(map[string]string{brokersEnv: "env-broker:9092"}))
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("expected env brokers fallback, got %+v", cfg.brokers)
	}
	if cfg.topics.Order != kafka.TopicOrderEvents || cfg.topics.Product != kafka.TopicProductEvents {
		t.Fatalf("unexpected default topics: %+v", cfg.topics)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.limit != 5 || cfg.execute || cfg.idleTimeout != defaultIdleTimeout {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = parseConfig([]string{"-brokers=a:9092,b:9092", "-execute", "-from-newest"}, envOf(map[string]string{brokersEnv: "env-broker:9092"}))
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 || !cfg.execute || !cfg.fromNewest {
		t.Fatalf("flags must win over env: %+v", cfg)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no brokers", args: nil, want: "brokers are required"},
		{name: "blank brokers", args: []string{"-brokers= , "}, want: "brokers are required"},
		{name: "empty source", args: []string{"-brokers=b:9092", "-source-topic= "}, want: "source-topic"},
		{name: "empty product topic", args: []string{"-brokers=b:9092", "-product-topic="}, want: "product-topic"},
		{name: "loop", args: []string{"-brokers=b:9092", "-source-topic=" + kafka.TopicOrderEvents}, want: "must differ"},
		{name: "limit", args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit"},
		{name: "idle timeout", args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout"},
		{name: "unknown flag", args: []string{"-nope"}, want: "nope"},
	}

	for _, tt := range tests {
		_, err := parseConfig(tt.args, envOf(nil))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func TestExtractReplayMessage_RoutesByAggregateType(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	topics := kafka.DefaultTopics()

	tests := []struct {
		aggregateType string
		wantTopic     string
	}{
		{aggregateType: domain.AggregateOrder, wantTopic: kafka.TopicOrderEvents},
		{aggregateType: domain.AggregateProduct, wantTopic: kafka.TopicProductEvents},
	}

	for _, tt := range tests {
		raw := dlqRecord(t, tt.aggregateType, "agg-1", map[string]any{"status": "Completed"})
		got, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, topics, now)
		if err != nil {
			t.Fatalf("extractReplayMessage failed: %v", err)
		}
		if got.topic != tt.wantTopic {
			t.Fatalf("%s: unexpected topic %s", tt.aggregateType, got.topic)
		}
		if got.key != "agg-1" {
			t.Fatalf("unexpected key: %s", got.key)
		}
		if got.headers[kafka.HeaderOutboxID] != "outbox-1" || got.headers[kafka.HeaderAggregateType] != tt.aggregateType {
			t.Fatalf("unexpected headers: %+v", got.headers)
		}

		var envelope kafka.Envelope
		if err := json.Unmarshal(got.value, &envelope); err != nil {
			t.Fatalf("replay payload must be an envelope: %v", err)
		}
		if envelope.ID != "outbox-1" || !envelope.PublishedAt.Equal(now) {
			t.Fatalf("unexpected envelope: %+v", envelope)
		}
		if string(envelope.Payload) != `{"status":"Completed"}` {
			t.Fatalf("original payload must be preserved, got %s", envelope.Payload)
		}
	}
}

func TestExtractReplayMessage_Rejects(t *testing.T) {
	topics := kafka.DefaultTopics()
	now := time.Now()

	if _, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte("not-json")}, topics, now); !errors.Is(err, errNotOutboxDLQ) {
		t.Fatalf("expected errNotOutboxDLQ for garbage, got %v", err)
	}
	if _, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"id":"x"}`)}, topics, now); !errors.Is(err, errNotOutboxDLQ) {
		t.Fatalf("expected errNotOutboxDLQ without payload, got %v", err)
	}

	raw := dlqRecord(t, domain.AggregateOrder, "order-1", nil)
	_, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, topics, now)
	if err == nil || errors.Is(err, errNotOutboxDLQ) {
		t.Fatalf("expected missing original payload error, got %v", err)
	}
}

func TestRunReplay_DryRunDoesNotPublish(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 10, idleTimeout: 50 * time.Millisecond}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 3}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				{Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-1", map[string]any{"a": 1})},
				{Offset: 1, Value: []byte("garbage")},
				{Offset: 2, Value: dlqRecord(t, domain.AggregateProduct, "product-1", map[string]any{"b": 2})},
			}),
		},
	}
	producer := &stubReplayProducer{}

	if err := runReplay(context.Background(), cfg, client, consumer, producer); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if producer.calls != 0 {
		t.Fatalf("dry-run must not publish, got %d calls", producer.calls)
	}
}

func TestRunReplay_ExecutePublishesToAggregateTopics(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 10, execute: true, idleTimeout: 50 * time.Millisecond}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				{Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-1", map[string]any{"a": 1})},
				{Offset: 1, Value: dlqRecord(t, domain.AggregateProduct, "product-1", map[string]any{"b": 2})},
			}),
		},
	}
	producer := &stubReplayProducer{}

	if err := runReplay(context.Background(), cfg, client, consumer, producer); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if producer.calls != 2 {
		t.Fatalf("expected 2 published messages, got %d", producer.calls)
	}
	if producer.topics[0] != kafka.TopicOrderEvents || producer.topics[1] != kafka.TopicProductEvents {
		t.Fatalf("unexpected replay topics: %+v", producer.topics)
	}
	if len(producer.lastMsg.Headers) != 3 {
		t.Fatalf("expected replay headers, got %+v", producer.lastMsg.Headers)
	}

	producer.sendErr = errors.New("broker down")
	consumer.consumers[0] = closedPartitionConsumer([]*sarama.ConsumerMessage{
		{Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-1", map[string]any{"a": 1})},
	})
	if err := runReplay(context.Background(), cfg, client, consumer, producer); err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestRunReplay_LimitAndGuards(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 1, idleTimeout: 50 * time.Millisecond}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 0, Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-1", map[string]any{})}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 2, Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-2", map[string]any{})}}),
		},
	}

	if err := runReplay(context.Background(), cfg, client, consumer, nil); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].partition != 0 {
		t.Fatalf("expected only first sorted partition to be read, got %+v", consumer.calls)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}
	if err := runReplay(context.Background(), cfg, nil, consumer, nil); err == nil {
		t.Fatal("expected client to be required")
	}
	if err := runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}

	failing := &stubOffsetClient{partitionsErr: errors.New("metadata failed")}
	if err := runReplay(context.Background(), cfg, failing, consumer, nil); err == nil || !strings.Contains(err.Error(), "metadata failed") {
		t.Fatalf("expected partitions error, got %v", err)
	}
}

func TestRunReplay_FromNewestStartsWithinLimit(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 2, fromNewest: true, idleTimeout: 50 * time.Millisecond}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 3, newest: 10}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)},
	}

	if err := runReplay(context.Background(), cfg, client, consumer, nil); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if consumer.calls[0].offset != 8 {
		t.Fatalf("expected start offset 8, got %d", consumer.calls[0].offset)
	}
}

func TestRunReplay_CancelledContext(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 5, idleTimeout: time.Second}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 5}},
	}
	pc := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pc}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runReplay(ctx, cfg, client, consumer, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if !pc.closed {
		t.Fatal("partition consumer must be closed")
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDial := dialKafka
	defer func() { dialKafka = oldDial }()

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, topics: kafka.DefaultTopics(), limit: 1, idleTimeout: 20 * time.Millisecond}

	dialKafka = func(config) (replayDeps, error) {
		return replayDeps{}, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 1}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: dlqRecord(t, domain.AggregateOrder, "order-1", map[string]any{})}}),
		},
	}
	producer := &stubReplayProducer{}

	dialKafka = func(config) (replayDeps, error) {
		return replayDeps{client: client, consumer: consumer, producer: producer}, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers map[int32]partitionConsumer
	calls     []consumeCall
	closed    bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	topics  []string
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	s.topics = append(s.topics, msg.Topic)
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
