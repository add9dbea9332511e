package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_sync_passes_total",
		Help: "Total number of sync passes by outcome.",
	}, []string{"status"})

	syncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_sync_items_total",
		Help: "Events processed by sync passes.",
	}, []string{"phase", "outcome"})

	syncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminders_sync_pass_duration_seconds",
		Help:    "Histogram of sync pass latencies.",
		Buckets: prometheus.DefBuckets,
	})

	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reminders_sync_queue_depth",
		Help: "Sync requests waiting for the worker.",
	})

	timersFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_timers_fired_total",
		Help: "Total number of timers delivered to the firing handler.",
	})

	timerLateness = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminders_timer_lateness_seconds",
		Help:    "Delay between a timer's scheduled instant and its delivery.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 30, 60, 300, 3600},
	})

	recurrenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_recurrence_outcomes_total",
		Help: "Firings handled by the recurrence engine by outcome.",
	}, []string{"outcome"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_deliveries_total",
		Help: "Reminder deliveries by channel and outcome.",
	}, []string{"channel", "outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})
)

// ObserveSyncPass records the outcome and latency of one sync pass.
func ObserveSyncPass(status string, start time.Time) {
	syncPassesTotal.WithLabelValues(status).Inc()
	syncPassDuration.Observe(time.Since(start).Seconds())
}

// AddSyncItems counts events handled in a sync phase, e.g.
// ("upload", "ok") or ("download", "skipped").
func AddSyncItems(phase, outcome string, n int) {
	if n <= 0 {
		return
	}
	syncItemsTotal.WithLabelValues(phase, outcome).Add(float64(n))
}

// SetSyncQueueDepth publishes the number of queued sync requests.
func SetSyncQueueDepth(n int) {
	syncQueueDepth.Set(float64(n))
}

// ObserveTimerFired records a delivered timer and how late it was.
func ObserveTimerFired(scheduled, delivered time.Time) {
	timersFiredTotal.Inc()
	late := delivered.Sub(scheduled).Seconds()
	if late < 0 {
		late = 0
	}
	timerLateness.Observe(late)
}

// IncRecurrence counts a recurrence outcome such as "rescheduled",
// "terminated" or "invalid_time".
func IncRecurrence(outcome string) {
	recurrenceTotal.WithLabelValues(outcome).Inc()
}

// IncDelivery counts a reminder delivery attempt.
func IncDelivery(channel, outcome string) {
	deliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

// Middleware records request metrics for the daemon's HTTP surface.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			httpRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(ww.Status())).Inc()
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Readiness reports whether the daemon's dependencies are reachable.
type Readiness func(ctx context.Context) error

// Router builds the daemon's HTTP surface: liveness, readiness, metrics and
// an on-demand sync trigger.
func Router(ready Readiness, triggerSync http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if ready != nil {
			if err := ready(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	if triggerSync != nil {
		r.Post("/sync", triggerSync)
	}
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
