package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Each collector owns its registry, so two can coexist
	a := NewCollector()
	b := NewCollector()
	assert.NotNil(t, a)
	assert.NotNil(t, b)
}

func TestCounters(t *testing.T) {
	c := NewCollector()

	c.RecordPage()
	c.RecordPage()
	c.RecordWrite(10, 512, false)
	c.RecordWrite(2, 64, true)
	c.RecordRetry("fetch page")
	c.RecordRetry("fetch page")
	c.RecordRetry("upload")
	c.RecordRateLimit("fetch page", 5*time.Second)
	c.RecordCheckpointSave()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.pagesFetched))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.recordsWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordsDead))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.objectsWritten))
	assert.Equal(t, 576.0, testutil.ToFloat64(c.bytesWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.retries.WithLabelValues("fetch page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimitWaits.WithLabelValues("fetch page")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.rateLimitSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointSaves))
}

func TestSetState(t *testing.T) {
	c := NewCollector()

	c.SetState("FETCHING")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobState.WithLabelValues("FETCHING")))

	c.SetState("FAILED")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.jobState.WithLabelValues("FETCHING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobState.WithLabelValues("FAILED")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordPage()
		c.RecordWrite(1, 1, false)
		c.RecordRetry("op")
		c.RecordRateLimit("op", time.Second)
		c.RecordCheckpointSave()
		c.ObserveUpload(time.Second)
		c.SetState("DONE")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordPage()
	c.ObserveUpload(250 * time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sfextract_pages_fetched_total 1")
	assert.Contains(t, string(body), "sfextract_upload_duration_seconds_count 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
