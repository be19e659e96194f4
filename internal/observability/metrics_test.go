package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountResolverEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.GenerationStarted()
	m.GenerationStarted()
	m.StaleProfileDiscarded()
	m.ProfileFetchApplied("loaded")
	m.ProfileFetchApplied("not_found")
	m.ProfileFetchApplied("loaded")
	m.Redirected("/auth")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleDiscards))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.profileFetches.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.profileFetches.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirects.WithLabelValues("/auth")))
}

func TestMetricsRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest("/auth/v1/token", "POST", 200, 15*time.Millisecond)
	m.RecordError("/auth/v1/token", "POST", "invalid_credentials")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/auth/v1/token", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("POST", "/auth/v1/token", "invalid_credentials")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GenerationStarted()
		m.StaleProfileDiscarded()
		m.ProfileFetchApplied("loaded")
		m.Redirected("/home")
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "x")
	})
}
