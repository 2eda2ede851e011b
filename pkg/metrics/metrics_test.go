package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordStart("PeerPool")
	m.RecordStart("PeerPool")
	m.RecordFinish("PeerPool", OutcomeCancelled)
	m.RecordCancel("PeerPool", 10*time.Millisecond, false)
	m.RecordCancel("PeerPool", time.Second, true)
	m.RecordCleanup("PeerPool", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ServicesStarted.WithLabelValues("PeerPool")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ServicesRunning.WithLabelValues("PeerPool")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ServiceOutcomes.WithLabelValues("PeerPool", OutcomeCancelled)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CancelTimeouts.WithLabelValues("PeerPool")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CancelDuration))
}

func TestRecordPublish(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordPublish(nil)
	m.RecordPublish(errors.New("redis down"))
	m.RecordPublish(nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.StatusPublished.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusPublished.WithLabelValues("error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStart("x")
		m.RecordFinish("x", OutcomeFault)
		m.RecordCleanup("x", time.Second)
		m.RecordCancel("x", time.Second, true)
		m.RecordPublish(nil)
		m.RecordRequest("GET", "/health", http.StatusOK, time.Millisecond)
		m.RecordUptime(make(chan struct{}))
	})
}

func TestHandler(t *testing.T) {
	m := New(Config{Namespace: "test"})
	m.RecordRequest("GET", "/services", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_admin_request_total{method="GET",path="/services",status="OK"} 1`), body)
}
