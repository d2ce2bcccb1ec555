package outbox

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/metrics"
)

// Recorder ставит доменные события в outbox. Ошибки записи только логируются:
// операция над заказом или товаром уже сохранена и не должна из-за них падать.
type Recorder struct {
	repo    domain.OutboxRepository
	metrics *metrics.LifecycleMetrics
	logger  *log.Entry
}

// NewRecorder создаёт Recorder. repo == nil отключает запись событий.
func NewRecorder(repo domain.OutboxRepository, m *metrics.LifecycleMetrics, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "outbox-recorder")
	}
	return &Recorder{repo: repo, metrics: m, logger: logger}
}

// Record сериализует payload и ставит событие в очередь публикации.
func (r *Recorder) Record(aggregateType, aggregateID, eventType string, payload map[string]any) {
	if r == nil || r.repo == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload[aggregateType+"_id"] = aggregateID
	if _, ok := payload["ts"]; !ok {
		payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	fields := log.Fields{
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event":          eventType,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		return
	}

	if _, err := r.repo.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		r.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		return
	}
	r.metrics.RecordOutboxEvent()
}
