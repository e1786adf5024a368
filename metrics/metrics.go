package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bracket_engine"

// Metrics groups the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	bracketGenerations   *prometheus.CounterVec
	matchTransitions     *prometheus.CounterVec
	conflictRetries      prometheus.Counter
	notificationFailures *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bracketGenerations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bracket_generations_total",
			Help:      "Bracket generation attempts by outcome.",
		}, []string{"outcome"}),
		matchTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_transitions_total",
			Help:      "Committed match status transitions.",
		}, []string{"from", "to"}),
		conflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_conflict_retries_total",
			Help:      "Match updates retried after a concurrent writer won the version check.",
		}),
		notificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be enqueued or delivered.",
		}, []string{"stage", "channel"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) BracketGenerated(outcome string) {
	if m == nil {
		return
	}
	m.bracketGenerations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MatchTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.matchTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ConflictRetried() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// NotificationFailed counts a failed notification. stage is "enqueue" or "deliver".
func (m *Metrics) NotificationFailed(stage, channel string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(stage, channel).Inc()
}

// Middleware records request latency labelled with the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
