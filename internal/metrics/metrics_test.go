package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a, b := New(), New()
	a.RecordsCreated.WithLabelValues("expense").Inc()
	a.RecordsCreated.WithLabelValues("expense").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.RecordsCreated.WithLabelValues("expense")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsCreated.WithLabelValues("expense")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.PublishFailures.Inc()
	m.ObserveRequest("GET", "/api/summary", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "conti_event_publish_failures_total 1"))
	assert.True(t, strings.Contains(text, `conti_http_request_duration_seconds_count{method="GET",route="/api/summary",status="200"} 1`))
}
