package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
)

// Valuator values every stocked product of a tenant.
type Valuator interface {
	ValuateAll(ctx context.Context, tenantID int64, asOf time.Time) ([]inventory.Valuation, error)
}

// InventoryRevaluationJob logs a valuation snapshot per tenant.
type InventoryRevaluationJob struct {
	stock   Valuator
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInventoryRevaluationJob initialises the revaluation handler.
func NewInventoryRevaluationJob(stock Valuator, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryRevaluationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryRevaluationJob{
		stock:   stock,
		logger:  logger,
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle values the tenant's stock and logs the total.
func (j *InventoryRevaluationJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.stock == nil {
		return errors.New("inventory revaluation: handler not configured")
	}
	payload, err := decodeTenantPayload(t)
	if err != nil {
		return fmt.Errorf("inventory revaluation: %v: %w", err, asynq.SkipRetry)
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}

	tracker := j.metrics.Track(TaskInventoryRevaluation, payload.TenantID)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.clock()
	valuations, err := j.stock.ValuateAll(ctx, payload.TenantID, asOf)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, v := range valuations {
		total = total.Add(v.Value)
		j.logger.Debug("stock valuation",
			slog.Int64("tenant_id", payload.TenantID),
			slog.String("product_id", v.ProductID.String()),
			slog.Int64("warehouse_id", v.WarehouseID),
			slog.String("method", string(v.Method)),
			slog.String("quantity", v.Quantity.String()),
			slog.String("value", v.Value.StringFixed(2)),
		)
	}
	j.logger.Info("inventory revaluation completed",
		slog.Int64("tenant_id", payload.TenantID),
		slog.Time("as_of", asOf),
		slog.Int("positions", len(valuations)),
		slog.String("total_value", total.StringFixed(2)),
		slog.Duration("duration", j.clock().Sub(start)),
	)
	return nil
}
