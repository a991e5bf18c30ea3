package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	GenerationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_generations_total",
			Help: "Study material generations by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "study_generation_duration_seconds",
			Help:    "Duration of study material generations",
			Buckets: []float64{0.05, 0.5, 2, 5, 15, 30, 60},
		},
		[]string{"path"},
	)

	ActiveLiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions_active",
		Help: "Live class sessions currently held in memory",
	})

	BattlesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battles_finished_total",
			Help: "Finished battles by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(GenerationCounter)
		prometheus.MustRegister(GenerationDuration)
		prometheus.MustRegister(ActiveLiveSessions)
		prometheus.MustRegister(BattlesFinished)
	})
}

func ObserveGeneration(path, outcome string, took time.Duration) {
	GenerationCounter.WithLabelValues(path, outcome).Inc()
	GenerationDuration.WithLabelValues(path).Observe(took.Seconds())
}

// Middleware records request counts and latencies by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
