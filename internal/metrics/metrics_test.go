package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthOpCounts(t *testing.T) {
	m, err := NewRegistry()
	require.NoError(t, err)

	m.AuthOp("login", nil)
	m.AuthOp("login", errors.New("bad password"))
	m.AuthOp("login", errors.New("bad password"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", OutcomeFailure)))
}

func TestVerificationAndSweep(t *testing.T) {
	m, err := NewRegistry()
	require.NoError(t, err)

	m.Verification("refresh", nil)
	m.LedgerSwept(3)
	m.LedgerSwept(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("refresh", OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ledgerSwept))
}

func TestRequestStarted(t *testing.T) {
	m, err := NewRegistry()
	require.NoError(t, err)

	done := m.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
	done("GET", "/balance", "200", 0.01)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, reg)
	require.NoError(t, err)
	_, err = New(reg, reg)
	assert.Error(t, err)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AuthOp("login", nil)
	m.Verification("access", nil)
	m.LedgerSwept(1)
	m.RequestStarted()("GET", "/", "200", 0)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m, err := NewRegistry()
	require.NoError(t, err)
	m.AuthOp("register", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tessera_auth_operations_total{op="register",outcome="success"} 1`)
}
