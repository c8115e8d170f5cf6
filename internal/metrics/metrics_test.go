package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var m *Registry
	assert.NotPanics(t, func() {
		m.RecordIngest(1, 2)
		m.RecordCommit("ok")
		m.RecordUpsert("import", 3)
		m.RecordStoreError("upsert")
		m.RecordCache("ledger", true)
		m.ObserveHTTP("/api/dashboard", http.MethodGet, 200, time.Millisecond)
		m.SetBreakerState("ledger", 2)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordIngest(5, 2)
	m.RecordCommit("ok")
	m.RecordCommit("ok")
	m.RecordCache("aggregate", false)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.IngestedRows.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestedRows.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("aggregate", "miss")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordUpsert("forecast", 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `capex_upserted_rows_total{source="forecast"} 4`))
}
