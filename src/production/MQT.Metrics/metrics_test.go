package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.MessageIngested("telemetry", 0.001)
	m.MessageIngested("telemetry", 0.002)
	m.MessageIngested("event", 0.001)
	m.AppendFailed()
	m.StateUpserted()
	m.TelemetryUnparsed()
	m.Dispatch(OutcomeSent)
	m.Dispatch(OutcomeUnavailable)
	m.Dispatch(OutcomeUnavailable)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesIngested.WithLabelValues("telemetry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesIngested.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.appendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateUpserts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degradedFields))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues(OutcomeUnavailable)))
}

func TestSessionState(t *testing.T) {
	m := New()
	m.SessionState("sub")(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionState.WithLabelValues("sub")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageIngested("event", 1)
		m.AppendFailed()
		m.StateUpserted()
		m.StateFailed()
		m.TelemetryUnparsed()
		m.Dispatch(OutcomeSent)
		m.SessionState("pub")(2)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.Dispatch(OutcomeSent)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `locker_commands_dispatch_total{outcome="sent"} 1`)
}
