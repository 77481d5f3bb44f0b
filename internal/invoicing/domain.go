package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side distinguishes customer invoices from supplier bills.
type Side string

const (
	SideReceivable Side = "receivable"
	SidePayable    Side = "payable"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideReceivable || s == SidePayable
}

// InvoiceType enumerates invoice kinds.
type InvoiceType string

const (
	TypeStandard   InvoiceType = "standard"
	TypeCreditNote InvoiceType = "credit_note"
	TypeDebitNote  InvoiceType = "debit_note"
	TypeProforma   InvoiceType = "proforma"
	TypeRecurring  InvoiceType = "recurring"
)

// Valid reports whether t is a known invoice type.
func (t InvoiceType) Valid() bool {
	switch t {
	case TypeStandard, TypeCreditNote, TypeDebitNote, TypeProforma, TypeRecurring:
		return true
	}
	return false
}

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Line is one billed item.
type Line struct {
	ProductID   uuid.NullUUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxRatePct  decimal.Decimal
}

// Payment is money applied against an invoice. Negative amounts compensate
// earlier payments or refund a credit note.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Reference string
	Amount    decimal.Decimal
	PaidAt    time.Time
	CreatedAt time.Time
}

// Invoice is a receivable or payable document. Subtotal, TaxTotal and Total
// are derived from Lines; PaidAmount from Payments.
type Invoice struct {
	ID               uuid.UUID
	TenantID         int64
	Number           string
	Side             Side
	Type             InvoiceType
	Status           Status
	PartyID          string
	WarehouseID      int64
	IssueDate        time.Time
	DueDate          time.Time
	Subtotal         decimal.Decimal
	TaxTotal         decimal.Decimal
	Total            decimal.Decimal
	PaidAmount       decimal.Decimal
	RecurrenceMonths int
	TemplateID       uuid.NullUUID
	ShippedAt        *time.Time
	Lines            []Line
	Payments         []Payment
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Pending is the amount still owed.
func (inv Invoice) Pending() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

// PendingAt counts only payments dated on or before asOf.
func (inv Invoice) PendingAt(asOf time.Time) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range inv.Payments {
		if !p.PaidAt.After(asOf) {
			paid = paid.Add(p.Amount)
		}
	}
	return inv.Total.Sub(paid)
}

// Outstanding reports whether the invoice carries a collectible balance.
func (inv Invoice) Outstanding() bool {
	switch inv.Status {
	case StatusSent, StatusPartial:
		return inv.Type != TypeProforma
	}
	return false
}

// InvoiceInput creates a draft invoice.
type InvoiceInput struct {
	Side             Side
	Type             InvoiceType
	PartyID          string
	WarehouseID      int64
	IssueDate        time.Time
	DueDate          time.Time
	RecurrenceMonths int
	Lines            []Line
}

// PaymentInput applies a payment.
type PaymentInput struct {
	InvoiceID uuid.UUID
	Reference string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Side       Side
	Status     Status
	PartyID    string
	TemplateID uuid.UUID
}

// ShipmentLine asks the stock side to move goods for an invoice line.
type ShipmentLine struct {
	InvoiceID      uuid.UUID
	LineNo         int
	ProductID      uuid.UUID
	WarehouseID    int64
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	Inbound        bool
	Return         bool
	IdempotencyKey string
	Reference      string
	ShippedAt      time.Time
}
