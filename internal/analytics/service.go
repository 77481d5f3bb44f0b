package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
)

// ErrInvalidRange indicates a missing or inverted reporting window.
var ErrInvalidRange = errors.New("analytics: invalid date range")

// LedgerReader exposes per-account activity for a window.
type LedgerReader interface {
	PeriodActivity(ctx context.Context, tenantID int64, from, to time.Time) ([]accounting.AccountBalance, error)
}

// StockReader exposes replayed stock valuations.
type StockReader interface {
	ValuateAll(ctx context.Context, tenantID int64, asOf time.Time) ([]inventory.Valuation, error)
}

// InvoiceReader lists invoices with their payments.
type InvoiceReader interface {
	ListInvoices(ctx context.Context, tenantID int64, filter invoicing.ListFilter) ([]invoicing.Invoice, error)
}

// Service derives read-only reports from committed ledger, stock and invoice
// state. Results are recomputed on every call; identical concurrent calls
// share one computation.
type Service struct {
	ledger         LedgerReader
	stock          StockReader
	invoices       InvoiceReader
	cashAccounts   []string
	group          singleflight.Group
	computeTimeout time.Duration
	now            func() time.Time
}

// DefaultComputeTimeout bounds one shared KPI computation.
const DefaultComputeTimeout = 30 * time.Second

// NewService wires the readers. cashAccounts are the ledger codes, with their
// descendants, that make up the cash position.
func NewService(ledger LedgerReader, stock StockReader, invoices InvoiceReader, cashAccounts []string) *Service {
	return &Service{
		ledger:         ledger,
		stock:          stock,
		invoices:       invoices,
		cashAccounts:   cashAccounts,
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
	}
}

// WithComputeTimeout overrides the bound on a shared KPI computation.
func (s *Service) WithComputeTimeout(d time.Duration) {
	if d > 0 {
		s.computeTimeout = d
	}
}

// WithNow overrides the clock used for default dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// endOfDay is the last instant of t's day, used for timestamp-based stock replay.
func endOfDay(t time.Time) time.Time {
	return dateOnly(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func (s *Service) isCash(code string) bool {
	for _, c := range s.cashAccounts {
		if accounting.IsWithin(code, c) {
			return true
		}
	}
	return false
}

func sumValues(valuations []inventory.Valuation) (value, issued decimal.Decimal) {
	for _, v := range valuations {
		value = value.Add(v.Value)
		issued = issued.Add(v.IssuedCost)
	}
	return value, issued
}
