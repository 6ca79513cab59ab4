// Package metrics defines the worker's Prometheus collectors for job-run
// outcomes, dispatcher throughput, archiver/replayer counts, and
// settings-fetch retries, served over /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_job_runs_total",
		Help: "Total job runs by module, queue, job, and terminal status.",
	}, []string{"module", "queue", "job", "status"})

	JobRunDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "feedeater_job_run_duration_seconds",
		Help: "Job run wall-clock duration in seconds.",
	}, []string{"module", "queue", "job"})

	ArchivedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_archived_messages_total",
		Help: "Total messages archived from the messageCreated subject family.",
	}, []string{"module"})

	ReplayedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_replayed_messages_total",
		Help: "Total archived messages re-published during startup replay.",
	}, []string{"module"})

	ContextUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_context_upserts_total",
		Help: "Total context upserts by owner module and result.",
	}, []string{"owner_module", "result"})

	SettingsFetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_settings_fetch_retries_total",
		Help: "Total settings-fetch retry attempts by module.",
	}, []string{"module"})
)

// Server serves the /metrics endpoint on addr.
type Server struct {
	httpServer *http.Server
}

// Serve starts the metrics HTTP server in the background. Call Shutdown to
// stop it.
func Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
	go func() {
		_ = s.httpServer.ListenAndServe()
	}()
	return s
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ObserveJobRun records a terminal job-run outcome.
func ObserveJobRun(module, queue, job, status string, duration time.Duration) {
	JobRunsTotal.WithLabelValues(module, queue, job, status).Inc()
	JobRunDurationSeconds.WithLabelValues(module, queue, job).Observe(duration.Seconds())
}
