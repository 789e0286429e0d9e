package scenario_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nazeru/agrimarket-go/internal/httpapi"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/internal/scenario"
	"github.com/nazeru/agrimarket-go/internal/store/sqlite"
	"github.com/nazeru/agrimarket-go/pkg/apiclient"
	"github.com/nazeru/agrimarket-go/pkg/metrics"
)

func TestScenarios(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"), "agrimarket.orders")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	h := httpapi.New(tx.NewCoordinator(store), zaptest.NewLogger(t), metrics.NewServerMetrics(reg, "order"), metrics.NewOrderMetrics(reg), store.Ping)
	srv := httptest.NewServer(h.Router(reg, 5*time.Second))
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL, 5*time.Second)
	for _, s := range scenario.All() {
		t.Run(s.Name, func(t *testing.T) {
			out, err := s.Run(context.Background(), client)
			require.NoError(t, err)
			require.NotEmpty(t, out)
		})
	}
}
