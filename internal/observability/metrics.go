package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

// Metrics collects the pipeline's operational counters.
type Metrics struct {
	FragmentsProcessed *prometheus.CounterVec
	AssertionsWritten  prometheus.Counter
	Contradictions     *prometheus.CounterVec
	GapsOpened         *prometheus.CounterVec
	RescoreDuration    prometheus.Histogram
	QueueDepth         prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		FragmentsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kmflow",
			Name:      "fragments_processed_total",
			Help:      "Fragment pipeline runs by outcome.",
		}, []string{"status"}),
		AssertionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "kmflow",
			Name:      "assertions_written_total",
			Help:      "Assertions created (idempotent skips excluded).",
		}),
		Contradictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kmflow",
			Name:      "contradictions_total",
			Help:      "Contradictions opened by mismatch type.",
		}, []string{"mismatch_type"}),
		GapsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kmflow",
			Name:      "evidence_gaps_opened_total",
			Help:      "Evidence gaps opened by kind.",
		}, []string{"gap_kind"}),
		RescoreDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kmflow",
			Name:      "element_rescore_duration_seconds",
			Help:      "Wall time of a full element rescore pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "kmflow",
			Name:      "fragment_queue_depth",
			Help:      "Queued fragment jobs awaiting a worker.",
		}),
	}
}

// Serve exposes /metrics and /healthz on addr. Blocks; run in a goroutine.
func Serve(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics listener starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics listener stopped", "error", err)
	}
}
