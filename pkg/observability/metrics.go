package observability

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PrometheusHandler adapts the scrape handler to a gin route.
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// SyncMetrics counts sync and refresh outcomes.
type SyncMetrics struct {
	accountsSynced  metric.Int64Counter
	tokensRefreshed metric.Int64Counter
}

// NewSyncMetrics registers the sync instruments on the global meter provider.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.GetMeterProvider().Meter("social-sync")

	accountsSynced, err := meter.Int64Counter("sync_accounts_total",
		metric.WithDescription("Accounts processed by sync batches, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	tokensRefreshed, err := meter.Int64Counter("token_refreshes_total",
		metric.WithDescription("Token refresh sweep outcomes"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		accountsSynced:  accountsSynced,
		tokensRefreshed: tokensRefreshed,
	}, nil
}

// RecordBatch adds one batch's per-account outcomes.
func (m *SyncMetrics) RecordBatch(ctx context.Context, succeeded, failed int) {
	if m == nil {
		return
	}
	m.accountsSynced.Add(ctx, int64(succeeded), metric.WithAttributes(attribute.String("outcome", "success")))
	m.accountsSynced.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}

// RecordRefreshSweep adds one refresh sweep's outcomes.
func (m *SyncMetrics) RecordRefreshSweep(ctx context.Context, refreshed, failed int) {
	if m == nil {
		return
	}
	m.tokensRefreshed.Add(ctx, int64(refreshed), metric.WithAttributes(attribute.String("outcome", "success")))
	m.tokensRefreshed.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}
