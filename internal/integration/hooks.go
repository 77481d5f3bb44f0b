package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	PeriodForDate(ctx context.Context, tenantID int64, date time.Time) (accounting.Period, error)
	PostNew(ctx context.Context, tenantID int64, input accounting.DraftInput) (accounting.JournalEntry, error)
}

// StockMover applies stock movements.
type StockMover interface {
	ApplyMovement(ctx context.Context, tenantID int64, input inventory.MovementInput) (inventory.StockLevel, error)
}

// Hooks wires domain events from operational modules into the general ledger
// and invoice shipments into the stock engine.
type Hooks struct {
	ledger   Ledger
	stock    StockMover
	accounts AccountMap
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, stock StockMover, accounts AccountMap, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, stock: stock, accounts: accounts, logger: logger}
}

// sourceID derives a stable journal source id so replays hit the source link.
func sourceID(kind string, id uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(kind+":"+id.String()))
}

func (h *Hooks) post(ctx context.Context, tenantID int64, date time.Time, module string, source uuid.UUID, entryType accounting.EntryType, description string, legs []leg) error {
	if source == uuid.Nil {
		return errors.New("integration: source id required")
	}
	lines := journalLines(legs...)
	if len(lines) == 0 {
		return nil
	}
	period, err := h.ledger.PeriodForDate(ctx, tenantID, date)
	if err != nil {
		return err
	}
	_, err = h.ledger.PostNew(ctx, tenantID, accounting.DraftInput{
		PeriodID:     period.ID,
		Date:         date,
		Description:  description,
		Type:         entryType,
		SourceModule: module,
		SourceID:     source,
		Lines:        lines,
	})
	if errors.Is(err, accounting.ErrSourceAlreadyLinked) {
		h.logger.Info("posting already recorded", slog.String("source_module", module), slog.String("source_id", source.String()))
		return nil
	}
	return err
}

// InvoiceIssued posts revenue or expense for a sent invoice, and the contra
// entry when a sent invoice is cancelled.
func (h *Hooks) InvoiceIssued(ctx context.Context, evt invoicing.InvoiceIssuedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.IssueDate.IsZero() {
		return errors.New("integration: invoice issue date required")
	}
	module, kind, description := "invoicing.invoice", "invoice", fmt.Sprintf("Invoice %s", evt.Number)
	if evt.Cancelled {
		module, kind, description = "invoicing.cancel", "invoice-cancel", fmt.Sprintf("Cancel invoice %s", evt.Number)
	}
	return h.post(ctx, evt.TenantID, evt.IssueDate, module, sourceID(kind, evt.InvoiceID),
		accounting.EntryTypeStandard, description, h.accounts.invoiceLegs(evt))
}

// PaymentApplied posts the cash side of an invoice payment.
func (h *Hooks) PaymentApplied(ctx context.Context, evt invoicing.PaymentAppliedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.PaidAt.IsZero() {
		return errors.New("integration: payment date required")
	}
	return h.post(ctx, evt.TenantID, evt.PaidAt, "invoicing.payment", sourceID("payment", evt.PaymentID),
		accounting.EntryTypeStandard, fmt.Sprintf("Payment %s for %s", evt.Reference, evt.Number), h.accounts.paymentLegs(evt))
}

// MovementApplied posts the stock value change of a committed movement.
func (h *Hooks) MovementApplied(ctx context.Context, evt inventory.MovementAppliedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	legs := h.accounts.movementLegs(evt)
	if legs == nil {
		return nil
	}
	entryType := accounting.EntryTypeStandard
	if evt.Type == inventory.MovementInAdjustment || evt.Type == inventory.MovementOutAdjustment {
		entryType = accounting.EntryTypeAdjustment
	}
	return h.post(ctx, evt.TenantID, evt.OccurredAt, "inventory.movement", sourceID("movement", evt.MovementID),
		entryType, fmt.Sprintf("Stock %s %s", evt.Type, evt.Reference), legs)
}

// Ship applies one stock movement per shipment line. Lines carry idempotency
// keys, so a partially failed shipment can be retried.
func (h *Hooks) Ship(ctx context.Context, tenantID int64, lines []invoicing.ShipmentLine) error {
	if h == nil || h.stock == nil {
		return nil
	}
	for _, line := range lines {
		if _, err := h.stock.ApplyMovement(ctx, tenantID, movementFor(line)); err != nil {
			return fmt.Errorf("integration: ship line %d: %w", line.LineNo, err)
		}
	}
	return nil
}

var (
	_ invoicing.LedgerPort       = (*Hooks)(nil)
	_ invoicing.StockPort        = (*Hooks)(nil)
	_ inventory.MovementListener = (*Hooks)(nil)
)
