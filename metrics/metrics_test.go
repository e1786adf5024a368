package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BracketGenerated("ok")
		m.MatchTransition("scheduled", "in_progress")
		m.ConflictRetried()
		m.NotificationFailed("enqueue", "queue")
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MatchTransition("scheduled", "in_progress")
	m.MatchTransition("scheduled", "in_progress")
	m.MatchTransition("completed", "completed")
	m.NotificationFailed("deliver", "email")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.matchTransitions.WithLabelValues("scheduled", "in_progress")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.matchTransitions.WithLabelValues("completed", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("deliver", "email")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/matches/{matchID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler(reg))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matches/42", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/matches/{matchID}"`), body)
	assert.True(t, strings.Contains(body, `status="418"`), body)
}
