package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
)

var errInvalidTenant = errors.New("jobs: tenant id required")

// integrityTolerance is the largest trial balance difference accepted.
var integrityTolerance = decimal.New(1, -2)

// TrialBalancer reads the trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) ([]accounting.AccountBalance, error)
}

// LevelVerifier replays movements against materialised stock levels.
type LevelVerifier interface {
	VerifyLevels(ctx context.Context, tenantID int64) ([]inventory.LevelMismatch, error)
}

// LedgerIntegrityJob checks the double-entry and stock level invariants of a
// tenant. Violations fail the task without retry.
type LedgerIntegrityJob struct {
	ledger  TrialBalancer
	stock   LevelVerifier
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(ledger TrialBalancer, stock LevelVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerIntegrityJob{
		ledger:  ledger,
		stock:   stock,
		logger:  logger,
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	payload, err := decodeTenantPayload(t)
	if err != nil {
		return fmt.Errorf("ledger integrity: %v: %w", err, asynq.SkipRetry)
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}

	tracker := j.metrics.Track(TaskLedgerIntegrity, payload.TenantID)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger.With(slog.Int64("tenant_id", payload.TenantID), slog.Time("as_of", asOf))

	rows, err := j.ledger.TrialBalance(ctx, payload.TenantID, asOf)
	if err != nil {
		return err
	}
	var debit, credit decimal.Decimal
	for _, row := range rows {
		debit = debit.Add(row.Debit)
		credit = credit.Add(row.Credit)
	}
	findings := 0
	if diff := debit.Sub(credit).Abs(); diff.GreaterThan(integrityTolerance) {
		findings++
		j.metrics.AddFindings("trial_balance", payload.TenantID, 1)
		logger.Error("trial balance out of balance",
			slog.String("debit", debit.StringFixed(2)),
			slog.String("credit", credit.StringFixed(2)),
			slog.String("difference", diff.StringFixed(2)),
		)
	}

	if j.stock != nil {
		mismatches, err := j.stock.VerifyLevels(ctx, payload.TenantID)
		if err != nil {
			return err
		}
		for _, m := range mismatches {
			logger.Error("stock level disagrees with movements",
				slog.String("product_id", m.ProductID.String()),
				slog.Int64("warehouse_id", m.WarehouseID),
				slog.String("stored", m.Stored.String()),
				slog.String("replayed", m.Replayed.String()),
			)
		}
		findings += len(mismatches)
		j.metrics.AddFindings("stock_level", payload.TenantID, len(mismatches))
	}

	if findings > 0 {
		return fmt.Errorf("ledger integrity: %d findings for tenant %d: %w", findings, payload.TenantID, asynq.SkipRetry)
	}
	logger.Info("ledger integrity verified", slog.Int("accounts", len(rows)))
	return nil
}
