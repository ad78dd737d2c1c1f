package metrics

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReconcileOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordReconcileOutcome("set_admin", "updated", 1)
	m.RecordReconcileOutcome("set_admin", "updated", 3)
	m.RecordReconcileOutcome("set_admin", "skipped", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconcileOutcomesTotal.WithLabelValues("set_admin", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileOutcomesTotal.WithLabelValues("set_admin", "skipped")))
}

func TestRecordRPCCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRPCCall("GetAccountInfo", "success", "mainnet", 0.2)
	m.RecordRPCCall("GetAccountInfo", "error", "mainnet", 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.solanaRPCCallsTotal.WithLabelValues("GetAccountInfo", "success", "mainnet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solanaRPCCallsTotal.WithLabelValues("GetAccountInfo", "error", "mainnet")))
}

func TestAuditSinkStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordNATSPublish("distributor.set_admin.1", nil)
	m.RecordDBOperation("record_outcome", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.natsMessagesPublished.WithLabelValues("distributor.set_admin.1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("record_outcome", "error")))
}

func TestPush(t *testing.T) {
	var body string
	var path string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := NewMetrics(prometheus.NewRegistry())
	m.RecordDispatchRetry("set_clawback_start_ts")

	require.NoError(t, m.Push(gateway.URL, "distadmin"))
	assert.Contains(t, path, "/metrics/job/distadmin")
	assert.NotEmpty(t, body)
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	m := NewMetrics(prometheus.NewRegistry())
	err := m.Push(gateway.URL, "distadmin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push metrics")
}
