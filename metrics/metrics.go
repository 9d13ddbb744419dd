package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cqlmigrate/internal"
)

const namespace = "cqlmigrate"

// Metrics holds the collectors updated during a migration run.
type Metrics struct {
	RowsExtracted  prometheus.Counter
	WritesIssued   prometheus.Counter
	WriteFailures  prometheus.Counter
	WriteRetries   *prometheus.CounterVec
	InFlight       prometheus.Gauge
	ThrottleWaits  prometheus.Counter
	BatchDurations prometheus.Histogram
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_extracted_total",
			Help:      "Rows read from the source table.",
		}),
		WritesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_issued_total",
			Help:      "Write requests submitted to the target cluster.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Write requests that failed after the retry policy gave up.",
		}),
		WriteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_retries_total",
			Help:      "Write retries by error category.",
		}, []string{"category"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Outstanding asynchronous write requests.",
		}),
		ThrottleWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_waits_total",
			Help:      "Times submission paused at the in-flight high watermark.",
		}),
		BatchDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from first submission to barrier completion per batch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RowsExtracted,
			m.WritesIssued,
			m.WriteFailures,
			m.WriteRetries,
			m.InFlight,
			m.ThrottleWaits,
			m.BatchDurations,
		)
	}
	return m
}

// Serve exposes /metrics for gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	internal.Logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
