package app

import (
	"log/slog"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/accounting/reports"
	"github.com/odyssey-erp/fincore/internal/analytics"
	analytichttp "github.com/odyssey-erp/fincore/internal/analytics/http"
	"github.com/odyssey-erp/fincore/internal/integration"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/observability"
)

// Services holds the wired domain services.
type Services struct {
	Ledger    *accounting.Service
	Stock     *inventory.Service
	Invoices  *invoicing.Service
	Analytics *analytics.Service
	Hooks     *integration.Hooks
}

// NewServices wires services over p. Invoices post to the ledger and move
// stock through the integration hooks; committed movements post stock value.
func NewServices(cfg *Config, p *Persistence, metrics *observability.Metrics, logger *slog.Logger) *Services {
	ledger := accounting.NewService(p.Ledger, p.Audit, p.Locker)
	ledger.WithMetrics(metrics)

	stock := inventory.NewService(p.Stock, p.Audit, inventory.ServiceConfig{
		AllowBackorder: cfg.InventoryAllowBackorder,
		MaxRetries:     cfg.InventoryMaxRetries,
	})
	stock.WithMetrics(metrics)
	stock.WithLogger(logger)

	hooks := integration.NewHooks(ledger, stock, cfg.AccountMap(), logger)
	stock.WithListener(hooks)

	invoices := invoicing.NewService(p.Invoices, p.Audit)
	invoices.WithLedger(hooks)
	invoices.WithStock(hooks)
	invoices.WithLogger(logger)

	reports := analytics.NewService(ledger, stock, invoices, cfg.KPICashAccounts)
	reports.WithComputeTimeout(cfg.AppRequestTimeout)

	return &Services{
		Ledger:    ledger,
		Stock:     stock,
		Invoices:  invoices,
		Analytics: reports,
		Hooks:     hooks,
	}
}

// RouterParams builds handlers for every service.
func (s *Services) RouterParams(cfg *Config, logger *slog.Logger, metrics *observability.Metrics) RouterParams {
	return RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		AccountingHandler: accounting.NewHandler(logger, s.Ledger),
		ReportsHandler:    reports.NewHandler(logger, s.Ledger),
		InventoryHandler:  inventory.NewHandler(logger, s.Stock),
		InvoicingHandler:  invoicing.NewHandler(logger, s.Invoices),
		AnalyticsHandler:  analytichttp.NewHandler(logger, s.Analytics),
	}
}
