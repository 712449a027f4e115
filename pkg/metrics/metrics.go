// Package metrics exposes extraction job progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sfextract"

// Job states exported through the job_state gauge
var jobStates = []string{"INIT", "AUTHENTICATING", "FETCHING", "CHECKPOINTING", "UPLOADING", "DONE", "FAILED"}

// Collector holds the Prometheus metrics of one extraction job. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	pagesFetched     prometheus.Counter
	recordsWritten   prometheus.Counter
	recordsDead      prometheus.Counter
	objectsWritten   prometheus.Counter
	bytesWritten     prometheus.Counter
	retries          *prometheus.CounterVec
	rateLimitWaits   *prometheus.CounterVec
	rateLimitSeconds prometheus.Counter
	checkpointSaves  prometheus.Counter
	uploadLatency    prometheus.Histogram
	jobState         *prometheus.GaugeVec
}

// NewCollector creates a collector registered on its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of source pages fetched",
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total number of records written to primary locations",
		}),
		recordsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dead_lettered_total",
			Help:      "Total number of records moved to dead-letter locations",
		}),
		objectsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_written_total",
			Help:      "Total number of objects written to storage",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total number of bytes written to storage",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry attempts consumed, by operation",
		}, []string{"operation"}),
		rateLimitWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Server-directed rate-limit waits, by operation",
		}, []string{"operation"}),
		rateLimitSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Total time spent in rate-limit waits",
		}),
		checkpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Total number of checkpoint saves",
		}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Duration of chunk uploads including retries",
			Buckets:   prometheus.DefBuckets,
		}),
		jobState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_state",
			Help:      "1 for the job's current state, 0 otherwise",
		}, []string{"state"}),
	}

	c.registry.MustRegister(
		c.pagesFetched,
		c.recordsWritten,
		c.recordsDead,
		c.objectsWritten,
		c.bytesWritten,
		c.retries,
		c.rateLimitWaits,
		c.rateLimitSeconds,
		c.checkpointSaves,
		c.uploadLatency,
		c.jobState,
	)

	return c
}

// RecordPage counts a fetched page
func (c *Collector) RecordPage() {
	if c == nil {
		return
	}
	c.pagesFetched.Inc()
}

// RecordWrite counts one object written with the given record count
func (c *Collector) RecordWrite(records, bytes int, deadLetter bool) {
	if c == nil {
		return
	}
	c.objectsWritten.Inc()
	c.bytesWritten.Add(float64(bytes))
	if deadLetter {
		c.recordsDead.Add(float64(records))
	} else {
		c.recordsWritten.Add(float64(records))
	}
}

// RecordRetry counts one consumed retry attempt for op
func (c *Collector) RecordRetry(op string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(op).Inc()
}

// RecordRateLimit counts a rate-limit wait for op
func (c *Collector) RecordRateLimit(op string, wait time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWaits.WithLabelValues(op).Inc()
	c.rateLimitSeconds.Add(wait.Seconds())
}

// RecordCheckpointSave counts a persisted checkpoint
func (c *Collector) RecordCheckpointSave() {
	if c == nil {
		return
	}
	c.checkpointSaves.Inc()
}

// ObserveUpload records how long a chunk upload took
func (c *Collector) ObserveUpload(d time.Duration) {
	if c == nil {
		return
	}
	c.uploadLatency.Observe(d.Seconds())
}

// SetState marks state as the job's current state
func (c *Collector) SetState(state string) {
	if c == nil {
		return
	}
	for _, s := range jobStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.jobState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the collector's metrics in Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
