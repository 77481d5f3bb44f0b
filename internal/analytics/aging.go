package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/fincore/internal/invoicing"
)

// ErrInvalidSide indicates an unknown invoice side.
var ErrInvalidSide = errors.New("analytics: invalid invoice side")

// AgingReport totals pending amounts per aging bucket for one side at asOf.
// A zero asOf means today.
func (s *Service) AgingReport(ctx context.Context, tenantID int64, side invoicing.Side, asOf time.Time) (invoicing.AgingSummary, error) {
	if !side.Valid() {
		return invoicing.AgingSummary{}, ErrInvalidSide
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	invoices, err := s.invoices.ListInvoices(ctx, tenantID, invoicing.ListFilter{Side: side})
	if err != nil {
		return invoicing.AgingSummary{}, err
	}
	return invoicing.AgingTotals(invoices, dateOnly(asOf)), nil
}
