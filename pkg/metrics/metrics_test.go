package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.Created.Inc()
	m.Transitions.WithLabelValues("Pending", "Confirmed").Inc()
	m.Rejections.WithLabelValues("InsufficientInventory").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Created))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Cancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Pending", "Confirmed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues("InsufficientInventory")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServerMetrics(reg, "order")
	s.Requests.WithLabelValues("create_order", "201").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agrimarket_order_http_requests_total{handler="create_order",status="201"} 1`)
}
