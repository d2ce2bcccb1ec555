package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstream/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — заголовок с ключом идемпотентности.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, восстановленных по ключу.
	HeaderIdempotentReplay = "Idempotent-Replay"
	// HeaderRequestID — сквозной идентификатор запроса.
	HeaderRequestID = "X-Request-Id"

	requestIDKey = "request_id"
)

// requestID берёт X-Request-Id клиента или выдаёт новый.
func requestID(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(HeaderRequestID, id)
	c.Next()
}

func limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	}
	c.Next()
}

// requestLogger пишет access-лог запроса через logrus.
func (a *API) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	status := c.Writer.Status()
	entry := a.logger.WithFields(log.Fields{
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"route":       c.FullPath(),
		"status":      status,
		"bytes":       c.Writer.Size(),
		"client_ip":   c.ClientIP(),
		"duration_ms": time.Since(start).Milliseconds(),
		"request_id":  c.GetString(requestIDKey),
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("http request")
		return
	}
	entry.Debug("http request")
}

// observe фиксирует метрики запроса по шаблону маршрута.
func (a *API) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	a.metrics.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
}

// teeWriter дублирует тело ответа в буфер.
type teeWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для уже выполненного запроса с тем же Idempotency-Key.
// Запросы без заголовка проходят как есть.
func (a *API) idempotent(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" || a.guard == nil {
		c.Next()
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	_ = c.Request.Body.Close()
	if err != nil {
		a.respondError(c, &requestError{err: err})
		c.Abort()
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	entry := a.logger.WithField("idempotency_key", key)
	decision, err := a.guard.Begin(key, idempotency.HashRequest(c.Request.Method, c.Request.URL.Path, body))
	if err != nil {
		a.respondError(c, err)
		c.Abort()
		return
	}

	switch decision.Outcome {
	case idempotency.OutcomeMismatch:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Error: "idempotency key is already used with a different request"})
	case idempotency.OutcomeInProgress:
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: "request with the same idempotency key is still processing"})
	case idempotency.OutcomeReplay:
		entry.Debug("replaying stored response")
		c.Header(HeaderIdempotentReplay, "true")
		c.Data(decision.Record.Response.StatusCode, "application/json; charset=utf-8", decision.Record.Response.Body)
		c.Abort()
	default:
		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee

		// Паника обработчика не должна оставлять ключ в processing до конца TTL.
		defer func() {
			if r := recover(); r != nil {
				entry.WithField("panic", r).Error("handler panicked, storing internal error")
				a.guard.Finish(key, http.StatusInternalServerError, internalErrorBody)
				panic(r)
			}
		}()

		c.Next()

		a.guard.Finish(key, tee.Status(), tee.body.Bytes())
	}
}

var internalErrorBody = []byte(`{"error":"` + http.StatusText(http.StatusInternalServerError) + `"}`)

// recoverPanic отвечает на панику тем же телом, что сохраняется для идемпотентного повтора.
func recoverPanic(c *gin.Context, _ any) {
	c.Data(http.StatusInternalServerError, "application/json; charset=utf-8", internalErrorBody)
	c.Abort()
}
