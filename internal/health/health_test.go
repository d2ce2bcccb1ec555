package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

func okChecker(name string) *SimpleChecker {
	return NewSimpleChecker(name, func(context.Context) error { return nil })
}

func failingChecker(name, msg string) *SimpleChecker {
	return NewSimpleChecker(name, func(context.Context) error { return errors.New(msg) })
}

type stubChecker Check

func (c stubChecker) Check(context.Context) Check { return Check(c) }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   map[string]Checker
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "healthy",
			checkers:   map[string]Checker{"storage": okChecker("storage")},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "degraded stays available",
			checkers: map[string]Checker{
				"storage": okChecker("storage"),
				"outbox":  stubChecker{Name: "outbox", Status: StatusDegraded},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "unhealthy wins",
			checkers: map[string]Checker{
				"storage": failingChecker("storage", "connection refused"),
				"outbox":  stubChecker{Name: "outbox", Status: StatusDegraded},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewHandler("v1.0.0")
			for name, checker := range tt.checkers {
				handler.RegisterChecker(name, checker)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tt.wantCode, w.Code)

			var response Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			require.Equal(t, tt.wantStatus, response.Status)
			require.Equal(t, "v1.0.0", response.Version)
			require.Len(t, response.Checks, len(tt.checkers))
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", okChecker("storage"))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("storage", failingChecker("storage", "down"))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestRun_AppliesTimeout(t *testing.T) {
	t.Parallel()

	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	status, checks := handler.Run(context.Background())
	require.Equal(t, StatusUnhealthy, status)
	require.Contains(t, checks["slow"].Message, context.DeadlineExceeded.Error())
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusHealthy, NewPingChecker("postgres", stubPinger{}).Check(context.Background()).Status)

	check := NewPingChecker("postgres", stubPinger{err: errors.New("refused")}).Check(context.Background())
	require.Equal(t, StatusUnhealthy, check.Status)
	require.Equal(t, "refused", check.Message)
	require.Equal(t, "postgres", check.Name)
}

func TestOutboxBacklogChecker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	checker := func(stats domain.OutboxStats, err error) *OutboxBacklogChecker {
		return &OutboxBacklogChecker{
			stats:  func() (domain.OutboxStats, error) { return stats, err },
			maxAge: time.Minute,
			now:    func() time.Time { return now },
		}
	}

	require.Equal(t, StatusHealthy, checker(domain.OutboxStats{}, nil).Check(context.Background()).Status)
	require.Equal(t, StatusHealthy, checker(domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-30 * time.Second)}, nil).Check(context.Background()).Status)

	stale := checker(domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-5 * time.Minute)}, nil).Check(context.Background())
	require.Equal(t, StatusDegraded, stale.Status)
	require.Equal(t, "3 pending events, oldest 5m0s ago", stale.Message)

	failed := checker(domain.OutboxStats{}, errors.New("db down")).Check(context.Background())
	require.Equal(t, StatusUnhealthy, failed.Status)
}
