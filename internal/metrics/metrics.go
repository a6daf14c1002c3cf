package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// JobRuns counts scheduled and manual job executions.
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btcadvisor_job_runs_total",
			Help: "Total number of job executions",
		},
		[]string{"job", "status"}, // status: success|error|skipped
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "btcadvisor_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"job"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "btcadvisor_fetch_duration_seconds",
			Help:    "Market data fetch latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source", "status"},
	)

	IndicatorValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btcadvisor_indicator_value",
			Help: "Latest observed value per indicator",
		},
		[]string{"indicator"},
	)

	MonitorAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btcadvisor_monitor_alerts_total",
			Help: "Threshold alerts raised by the monitor",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call repeatedly.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(JobRuns)
		prometheus.MustRegister(JobDuration)
		prometheus.MustRegister(FetchDuration)
		prometheus.MustRegister(IndicatorValue)
		prometheus.MustRegister(MonitorAlerts)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordJob records one job execution.
func RecordJob(job string, duration time.Duration, err error) {
	JobRuns.WithLabelValues(job, status(err)).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordJobSkipped records a run skipped because another replica holds the lock.
func RecordJobSkipped(job string) {
	JobRuns.WithLabelValues(job, "skipped").Inc()
}

// RecordFetch records one upstream request.
func RecordFetch(source string, duration time.Duration, err error) {
	FetchDuration.WithLabelValues(source, status(err)).Observe(duration.Seconds())
}

// SetIndicator publishes the latest value of an indicator.
func SetIndicator(indicator string, value float64) {
	IndicatorValue.WithLabelValues(indicator).Set(value)
}

// RecordAlert counts one monitor alert.
func RecordAlert(kind string) {
	MonitorAlerts.WithLabelValues(kind).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	Init()
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
