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

func TestRecorders(t *testing.T) {
	m := New(DefaultConfig("fulfillment-api"))

	m.RecordFulfillment(OutcomeSuccess)
	m.RecordFulfillment(OutcomeSuccess)
	m.RecordFulfillment(OutcomeOutOfStock)
	m.RecordAllocations(3)
	m.RecordAllocations(0)
	m.RecordCompensation(CompensationRestored)
	m.RecordCourierRequest("create_order", 200, 120*time.Millisecond)
	m.RecordCourierRequest("create_order", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FulfillmentsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FulfillmentsTotal.WithLabelValues(OutcomeOutOfStock)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StockAllocationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StockCompensationsTotal.WithLabelValues(CompensationRestored)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CourierRequestDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordFulfillment(OutcomeError)
		m.RecordAllocations(1)
		m.RecordCompensation(CompensationFailed)
		m.RecordCourierRequest("login", 500, time.Millisecond)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(DefaultConfig("fulfillment-api"))
	m.RecordFulfillment(OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "fulfillment_fulfillments_total"))
	assert.True(t, strings.Contains(body, `service="fulfillment-api"`))
}
