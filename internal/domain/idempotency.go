package domain

import (
	"errors"
	"net/http"
	"time"
)

// IdempotencyStatus — состояние запроса, принятого под Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ответом 5xx.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	ErrIdempotencyKeyRequired         = kind(ErrInvalidInput, "idempotency key is required")
	ErrIdempotencyRequestHashRequired = kind(ErrInvalidInput, "idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = kind(ErrNotFound, "idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — живой ключ уже занят тем же запросом.
	ErrIdempotencyKeyAlreadyExists = kind(ErrConflict, "idempotency key already exists")
	// ErrIdempotencyHashMismatch — живой ключ занят запросом с другим телом.
	ErrIdempotencyHashMismatch = kind(ErrConflict, "idempotency key reused with different request")
)

// IdempotencyResponse — ответ, который отдаётся при повторе запроса.
type IdempotencyResponse struct {
	StatusCode int
	Body       []byte
}

// IdempotencyRecord связывает ключ с хэшем запроса и сохранённым ответом.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	Response    IdempotencyResponse
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdempotencyRepository хранит ключи идемпотентности.
type IdempotencyRepository interface {
	// Reserve занимает ключ в статусе processing. Просроченная запись с тем же
	// ключом считается свободной. Живой ключ даёт ErrIdempotencyKeyAlreadyExists
	// или ErrIdempotencyHashMismatch вместе с существующей записью.
	Reserve(key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус выбирается по StatusForResponse.
	Complete(key string, resp IdempotencyResponse) error
	// DeleteExpired удаляет до limit записей с ExpiresAt <= before; limit <= 0 без ограничения.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// StatusForResponse выбирает итоговый статус записи по коду ответа.
func StatusForResponse(statusCode int) IdempotencyStatus {
	if statusCode >= http.StatusInternalServerError {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// Expired сообщает, что ключ можно занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Completed сообщает, что ответ сохранён и запрос можно повторить из записи.
func (r IdempotencyRecord) Completed() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Clone копирует запись вместе с телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.Response.Body = append([]byte(nil), r.Response.Body...)
	return r
}

// IsIdempotencyConflict сообщает, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
