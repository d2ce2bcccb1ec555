package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

// DefaultTTL — время жизни ключа идемпотентности.
const DefaultTTL = 24 * time.Hour

// Outcome — решение по входящему запросу с ключом идемпотентности.
type Outcome int

const (
	// OutcomeProceed — ключ новый, запрос нужно выполнить.
	OutcomeProceed Outcome = iota
	// OutcomeReplay — запрос уже выполнен, нужно вернуть сохранённый ответ.
	OutcomeReplay
	// OutcomeInProgress — запрос с этим ключом ещё выполняется.
	OutcomeInProgress
	// OutcomeMismatch — ключ использован с другим запросом.
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProceed:
		return "proceed"
	case OutcomeReplay:
		return "replay"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Decision — результат Guard.Begin.
type Decision struct {
	Outcome Outcome
	// Record заполнен для OutcomeReplay.
	Record domain.IdempotencyRecord
}

// Guard резервирует ключи идемпотентности и хранит ответы на выполненные запросы.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// HashRequest возвращает SHA-256 от метода, пути и тела запроса.
func HashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin резервирует ключ за запросом с хэшем requestHash.
func (g *Guard) Begin(key, requestHash string) (Decision, error) {
	record, err := g.repo.Reserve(key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return Decision{Outcome: OutcomeProceed}, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Decision{Outcome: OutcomeMismatch}, nil
	case !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return Decision{}, fmt.Errorf("reserve idempotency key: %w", err)
	case record.Completed():
		return Decision{Outcome: OutcomeReplay, Record: record}, nil
	default:
		return Decision{Outcome: OutcomeInProgress}, nil
	}
}

// Finish сохраняет ответ. Ответы 5xx сохраняются как failed и тоже повторяются.
func (g *Guard) Finish(key string, httpStatus int, body []byte) {
	resp := domain.IdempotencyResponse{StatusCode: httpStatus, Body: body}
	if err := g.repo.Complete(key, resp); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
