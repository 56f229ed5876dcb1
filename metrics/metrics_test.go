package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("onboarding")

	m.RecordResult("complete", "", false, 20*time.Millisecond)
	m.RecordResult("failed", "verified", false, time.Millisecond)
	m.RecordResult("failed", "provisioned", true, time.Second)
	m.RecordProvisioned(true)
	m.RecordDeletion(nil)
	m.RecordDeletion(errors.New("denied"))
	m.RecordEvents(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("complete", "", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("failed", "provisioned", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisioned.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletions.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsReceived))

	srv, err := New(m, "127.0.0.1:0")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "onboarding_records_total")
	assert.Contains(t, string(body), "onboarding_record_duration_seconds_bucket")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResult("complete", "", false, time.Second)
		m.RecordProvisioned(false)
		m.RecordDeletion(nil)
		m.RecordEvents(1)
	})

	_, err := New(nil, "127.0.0.1:0")
	require.Error(t, err)
}
