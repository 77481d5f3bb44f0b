package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type lineRequest struct {
	ProductID   *uuid.UUID      `json:"product_id"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TaxRatePct  decimal.Decimal `json:"tax_rate_pct"`
}

type invoiceRequest struct {
	Side             string        `json:"side" validate:"omitempty,oneof=receivable payable"`
	Type             string        `json:"type" validate:"omitempty,oneof=standard credit_note debit_note proforma recurring"`
	PartyID          string        `json:"party_id" validate:"required,max=64"`
	WarehouseID      int64         `json:"warehouse_id" validate:"gte=0"`
	IssueDate        string        `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDate          string        `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	RecurrenceMonths int           `json:"recurrence_months" validate:"gte=0,lte=120"`
	Lines            []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (r invoiceRequest) toInput() InvoiceInput {
	issue, _ := time.Parse(time.DateOnly, r.IssueDate)
	var due time.Time
	if r.DueDate != "" {
		due, _ = time.Parse(time.DateOnly, r.DueDate)
	}
	lines := make([]Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		line := Line{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxRatePct:  l.TaxRatePct,
		}
		if l.ProductID != nil {
			line.ProductID = uuid.NullUUID{UUID: *l.ProductID, Valid: true}
		}
		lines = append(lines, line)
	}
	return InvoiceInput{
		Side:             Side(r.Side),
		Type:             InvoiceType(r.Type),
		PartyID:          r.PartyID,
		WarehouseID:      r.WarehouseID,
		IssueDate:        issue,
		DueDate:          due,
		RecurrenceMonths: r.RecurrenceMonths,
		Lines:            lines,
	}
}

type paymentRequest struct {
	Reference string          `json:"reference" validate:"required,max=128"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

type lineResponse struct {
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TaxRatePct  decimal.Decimal `json:"tax_rate_pct"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type paymentResponse struct {
	ID        uuid.UUID       `json:"id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at"`
}

type invoiceResponse struct {
	ID               uuid.UUID         `json:"id"`
	Number           string            `json:"number"`
	Side             Side              `json:"side"`
	Type             InvoiceType       `json:"type"`
	Status           Status            `json:"status"`
	PartyID          string            `json:"party_id"`
	WarehouseID      int64             `json:"warehouse_id,omitempty"`
	IssueDate        string            `json:"issue_date"`
	DueDate          string            `json:"due_date"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	TaxTotal         decimal.Decimal   `json:"tax_total"`
	Total            decimal.Decimal   `json:"total"`
	PaidAmount       decimal.Decimal   `json:"paid_amount"`
	Pending          decimal.Decimal   `json:"pending"`
	Overdue          bool              `json:"overdue"`
	RecurrenceMonths int               `json:"recurrence_months,omitempty"`
	TemplateID       *uuid.UUID        `json:"template_id,omitempty"`
	ShippedAt        *time.Time        `json:"shipped_at,omitempty"`
	Lines            []lineResponse    `json:"lines"`
	Payments         []paymentResponse `json:"payments"`
	LedgerPending    string            `json:"ledger_pending,omitempty"`
}

func toInvoiceResponse(inv Invoice, now time.Time) invoiceResponse {
	out := invoiceResponse{
		ID:               inv.ID,
		Number:           inv.Number,
		Side:             inv.Side,
		Type:             inv.Type,
		Status:           inv.Status,
		PartyID:          inv.PartyID,
		WarehouseID:      inv.WarehouseID,
		IssueDate:        inv.IssueDate.Format(time.DateOnly),
		DueDate:          inv.DueDate.Format(time.DateOnly),
		Subtotal:         inv.Subtotal,
		TaxTotal:         inv.TaxTotal,
		Total:            inv.Total,
		PaidAmount:       inv.PaidAmount,
		Pending:          inv.Pending(),
		Overdue:          IsOverdue(inv, now),
		RecurrenceMonths: inv.RecurrenceMonths,
		ShippedAt:        inv.ShippedAt,
		Lines:            make([]lineResponse, 0, len(inv.Lines)),
		Payments:         make([]paymentResponse, 0, len(inv.Payments)),
	}
	if inv.TemplateID.Valid {
		id := inv.TemplateID.UUID
		out.TemplateID = &id
	}
	for _, l := range inv.Lines {
		line := lineResponse{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxRatePct:  l.TaxRatePct,
			Subtotal:    LineSubtotal(l.Quantity, l.UnitPrice, l.DiscountPct).Round(2),
		}
		if l.ProductID.Valid {
			id := l.ProductID.UUID
			line.ProductID = &id
		}
		out.Lines = append(out.Lines, line)
	}
	for _, p := range inv.Payments {
		out.Payments = append(out.Payments, paymentResponse{
			ID:        p.ID,
			Reference: p.Reference,
			Amount:    p.Amount,
			PaidAt:    p.PaidAt.Format(time.DateOnly),
		})
	}
	return out
}
