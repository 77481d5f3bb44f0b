package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceIssuedEvent is emitted when an invoice is sent, and again with
// Cancelled set when a sent invoice is cancelled.
type InvoiceIssuedEvent struct {
	TenantID  int64
	InvoiceID uuid.UUID
	Number    string
	Side      Side
	Type      InvoiceType
	PartyID   string
	IssueDate time.Time
	Subtotal  decimal.Decimal
	TaxTotal  decimal.Decimal
	Total     decimal.Decimal
	Cancelled bool
}

// PaymentAppliedEvent is emitted for each newly applied payment.
type PaymentAppliedEvent struct {
	TenantID  int64
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
	Number    string
	Side      Side
	Reference string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// LedgerPort posts invoicing events to the general ledger.
type LedgerPort interface {
	InvoiceIssued(ctx context.Context, evt InvoiceIssuedEvent) error
	PaymentApplied(ctx context.Context, evt PaymentAppliedEvent) error
}

// StockPort moves goods for shipped invoice lines.
type StockPort interface {
	Ship(ctx context.Context, tenantID int64, lines []ShipmentLine) error
}

func issuedEvent(inv Invoice) InvoiceIssuedEvent {
	return InvoiceIssuedEvent{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Side:      inv.Side,
		Type:      inv.Type,
		PartyID:   inv.PartyID,
		IssueDate: inv.IssueDate,
		Subtotal:  inv.Subtotal,
		TaxTotal:  inv.TaxTotal,
		Total:     inv.Total,
	}
}
