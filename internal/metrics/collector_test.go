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

	"obsdock/internal/domain"
	"obsdock/internal/usecase"
)

var _ usecase.Recorder = (*Collector)(nil)

func TestConnectionStateGauge(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connState.WithLabelValues("disconnected")))

	c.ConnectionStateChanged(domain.StateConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connState.WithLabelValues("disconnected")))
}

func TestActionCounters(t *testing.T) {
	c := NewCollector()
	c.ActionDispatched(domain.TypeStartStream, domain.Succeeded("ok"), time.Millisecond)
	c.ActionDispatched(domain.TypeStartStream, domain.Failed(domain.TypeStartStream, domain.ErrNotConnected), time.Millisecond)
	c.ActionDispatched("madeUp", domain.Failed("madeUp", &domain.UnsupportedActionError{Type: "madeUp"}), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("startStream", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("startStream", "not_connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("unsupported", "unsupported")))
}

func TestReconnectAndRefreshCounters(t *testing.T) {
	c := NewCollector()
	c.ReconnectAttempted(false)
	c.ReconnectAttempted(false)
	c.ReconnectAttempted(true)
	c.SnapshotRefreshed(nil, time.Millisecond)
	c.SnapshotRefreshed(errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.reconnects.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("failure")))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	c.ReconnectAttempted(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `obsdock_reconnect_attempts_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "obsdock_connection_state")
}

func TestRegistryIsPrivate(t *testing.T) {
	c := NewCollector()
	c.ActionDispatched(domain.TypeToggleRecord, domain.Succeeded("ok"), time.Millisecond)

	n, err := testutil.GatherAndCount(c.Registry(), "obsdock_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := NewCollector()
	n, err = testutil.GatherAndCount(other.Registry(), "obsdock_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
