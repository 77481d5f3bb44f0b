package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultPaymentTermDays applies when an invoice has no due date.
const DefaultPaymentTermDays = 30

// Service implements the invoice lifecycle.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	ledger LedgerPort
	stock  StockPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, logger: slog.Default(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLedger attaches the ledger poster.
func (s *Service) WithLedger(ledger LedgerPort) {
	s.ledger = ledger
}

// WithStock attaches the stock mover used by Ship.
func (s *Service) WithStock(stock StockPort) {
	s.stock = stock
}

// WithLogger overrides the service logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func numberPrefix(side Side, t InvoiceType) string {
	var prefix string
	switch t {
	case TypeCreditNote:
		prefix = "CN"
	case TypeDebitNote:
		prefix = "DBN"
	case TypeProforma:
		prefix = "PRO"
	case TypeRecurring:
		prefix = "REC"
	default:
		prefix = "INV"
	}
	if side == SidePayable {
		return "AP-" + prefix
	}
	return prefix
}

// normalise validates input and fills defaults.
func normalise(input InvoiceInput) (InvoiceInput, error) {
	if input.Side == "" {
		input.Side = SideReceivable
	}
	if !input.Side.Valid() {
		return input, fmt.Errorf("%w: side %q", ErrInvalidInvoice, input.Side)
	}
	if input.Type == "" {
		input.Type = TypeStandard
	}
	if !input.Type.Valid() {
		return input, fmt.Errorf("%w: type %q", ErrInvalidInvoice, input.Type)
	}
	input.PartyID = strings.TrimSpace(input.PartyID)
	if input.PartyID == "" {
		return input, fmt.Errorf("%w: party required", ErrInvalidInvoice)
	}
	if len(input.Lines) == 0 {
		return input, ErrNoLines
	}
	for i, l := range input.Lines {
		if err := validateLine(l); err != nil {
			return input, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if input.IssueDate.IsZero() {
		return input, fmt.Errorf("%w: issue date required", ErrInvalidInvoice)
	}
	input.IssueDate = dateOnly(input.IssueDate)
	if input.DueDate.IsZero() {
		input.DueDate = input.IssueDate.AddDate(0, 0, DefaultPaymentTermDays)
	}
	input.DueDate = dateOnly(input.DueDate)
	if input.DueDate.Before(input.IssueDate) {
		return input, fmt.Errorf("%w: due date before issue date", ErrInvalidInvoice)
	}
	if input.Type == TypeRecurring {
		if input.RecurrenceMonths <= 0 {
			return input, fmt.Errorf("%w: recurring invoice needs an interval", ErrInvalidInvoice)
		}
	} else {
		input.RecurrenceMonths = 0
	}
	return input, nil
}

func totalsFor(t InvoiceType, lines []Line) Totals {
	totals := InvoiceTotals(lines)
	if t == TypeCreditNote {
		return totals.Negate()
	}
	return totals
}

// CreateInvoice stores a numbered draft.
func (s *Service) CreateInvoice(ctx context.Context, tenantID int64, input InvoiceInput) (Invoice, error) {
	return s.createInvoice(ctx, tenantID, input, uuid.NullUUID{})
}

func (s *Service) createInvoice(ctx context.Context, tenantID int64, input InvoiceInput, template uuid.NullUUID) (Invoice, error) {
	input, err := normalise(input)
	if err != nil {
		return Invoice{}, err
	}
	totals := totalsFor(input.Type, input.Lines)
	now := s.now()
	inv := Invoice{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Side:             input.Side,
		Type:             input.Type,
		Status:           StatusDraft,
		PartyID:          input.PartyID,
		WarehouseID:      input.WarehouseID,
		IssueDate:        input.IssueDate,
		DueDate:          input.DueDate,
		Subtotal:         totals.Subtotal,
		TaxTotal:         totals.TaxTotal,
		Total:            totals.Total,
		PaidAmount:       decimal.Zero,
		RecurrenceMonths: input.RecurrenceMonths,
		TemplateID:       template,
		Lines:            input.Lines,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prefix := numberPrefix(inv.Side, inv.Type)
		n, err := tx.NextNumber(ctx, tenantID, prefix)
		if err != nil {
			return err
		}
		inv.Number = fmt.Sprintf("%s-%06d", prefix, n)
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// UpdateDraft replaces the editable fields of a draft. Side and type are fixed.
func (s *Service) UpdateDraft(ctx context.Context, tenantID int64, id uuid.UUID, input InvoiceInput) (Invoice, error) {
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return &InvalidStateError{From: current.Status, Action: "edit"}
		}
		input.Side, input.Type = current.Side, current.Type
		input, err = normalise(input)
		if err != nil {
			return err
		}
		totals := totalsFor(current.Type, input.Lines)
		current.PartyID = input.PartyID
		current.WarehouseID = input.WarehouseID
		current.IssueDate = input.IssueDate
		current.DueDate = input.DueDate
		current.RecurrenceMonths = input.RecurrenceMonths
		current.Lines = input.Lines
		current.Subtotal, current.TaxTotal, current.Total = totals.Subtotal, totals.TaxTotal, totals.Total
		current.UpdatedAt = s.now()
		if err := tx.ReplaceDraft(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	return out, err
}

// Send issues a draft. Non-proforma invoices are posted to the ledger.
func (s *Service) Send(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return &InvalidStateError{From: inv.Status, Action: "send"}
		}
		next := StatusSent
		if inv.Type != TypeProforma {
			next = settlementStatus(inv.Total, decimal.Zero)
		}
		at := s.now()
		if err := tx.UpdateStatus(ctx, tenantID, id, StatusDraft, next, at); err != nil {
			return err
		}
		inv.Status, inv.UpdatedAt = next, at
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, inv, "invoice.send", nil)
	if inv.Type == TypeProforma || s.ledger == nil {
		return inv, nil
	}
	return inv, wrapLedgerPostError("invoice", s.ledger.InvoiceIssued(ctx, issuedEvent(inv)))
}

// Cancel voids a draft or sent invoice that has no payments. A sent
// invoice's ledger posting is offset.
func (s *Service) Cancel(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	var (
		inv  Invoice
		from Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		from = inv.Status
		if (from != StatusDraft && from != StatusSent) || len(inv.Payments) > 0 {
			return &InvalidStateError{From: from, Action: "cancel"}
		}
		at := s.now()
		if err := tx.UpdateStatus(ctx, tenantID, id, from, StatusCancelled, at); err != nil {
			return err
		}
		inv.Status, inv.UpdatedAt = StatusCancelled, at
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, inv, "invoice.cancel", map[string]any{"from": string(from)})
	if from == StatusDraft || inv.Type == TypeProforma || s.ledger == nil {
		return inv, nil
	}
	evt := issuedEvent(inv)
	evt.Cancelled = true
	return inv, wrapLedgerPostError("cancellation", s.ledger.InvoiceIssued(ctx, evt))
}

// ApplyPayment records a payment. Re-applying a reference with the same
// amount returns the invoice unchanged and hands the payment to the ledger
// again, which completes a posting that failed earlier. A different amount
// is rejected.
func (s *Service) ApplyPayment(ctx context.Context, tenantID int64, input PaymentInput) (Invoice, error) {
	input.Reference = strings.TrimSpace(input.Reference)
	if input.Reference == "" {
		return Invoice{}, fmt.Errorf("%w: reference required", ErrInvalidAmount)
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = s.now()
	}
	var (
		inv     Invoice
		payment Payment
		applied bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, tenantID, input.InvoiceID)
		if err != nil {
			return err
		}
		for _, p := range current.Payments {
			if p.Reference == input.Reference {
				if p.Amount.Equal(input.Amount) {
					inv, payment = current, p
					return nil
				}
				return fmt.Errorf("%w: %s carries a different amount", ErrDuplicatePayment, input.Reference)
			}
		}
		now := s.now()
		payment = Payment{
			ID:        uuid.New(),
			InvoiceID: current.ID,
			Reference: input.Reference,
			Amount:    input.Amount,
			PaidAt:    dateOnly(input.PaidAt),
			CreatedAt: now,
		}
		next, err := ApplyPayment(current, payment)
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, tenantID, payment); err != nil {
			return err
		}
		if err := tx.UpdateSettlement(ctx, tenantID, next.ID, next.PaidAmount, next.Status, now); err != nil {
			return err
		}
		next.UpdatedAt = now
		inv, applied = next, true
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if applied {
		s.record(ctx, inv, "invoice.payment", map[string]any{"reference": payment.Reference, "amount": payment.Amount.String()})
	}
	if s.ledger == nil {
		return inv, nil
	}
	return inv, wrapLedgerPostError("payment", s.ledger.PaymentApplied(ctx, paymentEvent(inv, payment)))
}

func paymentEvent(inv Invoice, p Payment) PaymentAppliedEvent {
	return PaymentAppliedEvent{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		PaymentID: p.ID,
		Number:    inv.Number,
		Side:      inv.Side,
		Reference: p.Reference,
		Amount:    p.Amount,
		PaidAt:    p.PaidAt,
	}
}

// Repost hands an issued invoice and its payments to the ledger again.
// Postings are keyed by source, so entries already recorded are skipped and
// only the missing ones are written.
func (s *Service) Repost(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	inv, err := s.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Type == TypeProforma || !(inv.Status == StatusSent || inv.Status == StatusPartial || inv.Status == StatusPaid) {
		return Invoice{}, &InvalidStateError{From: inv.Status, Action: "repost"}
	}
	if s.ledger == nil {
		return inv, nil
	}
	if err := s.ledger.InvoiceIssued(ctx, issuedEvent(inv)); err != nil {
		return inv, wrapLedgerPostError("invoice", err)
	}
	for _, p := range inv.Payments {
		if err := s.ledger.PaymentApplied(ctx, paymentEvent(inv, p)); err != nil {
			return inv, wrapLedgerPostError("payment", err)
		}
	}
	s.logger.Info("invoice reposted", slog.Int64("tenant_id", tenantID), slog.String("number", inv.Number), slog.Int("payments", len(inv.Payments)))
	return inv, nil
}

// Ship hands product lines of an issued invoice to the stock mover once.
func (s *Service) Ship(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	inv, err := s.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Type == TypeProforma || !(inv.Status == StatusSent || inv.Status == StatusPartial || inv.Status == StatusPaid) {
		return Invoice{}, &InvalidStateError{From: inv.Status, Action: "ship"}
	}
	if inv.ShippedAt != nil {
		return Invoice{}, &InvalidStateError{From: inv.Status, Action: "ship already shipped"}
	}
	if inv.WarehouseID == 0 {
		return Invoice{}, fmt.Errorf("%w: no warehouse", ErrNotShippable)
	}
	at := s.now()
	lines := ShipmentLines(inv, at)
	if len(lines) == 0 {
		return Invoice{}, ErrNotShippable
	}
	if s.stock != nil {
		if err := s.stock.Ship(ctx, tenantID, lines); err != nil {
			return Invoice{}, fmt.Errorf("ship invoice %s: %w", inv.Number, err)
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkShipped(ctx, tenantID, id, at)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.ShippedAt = &at
	s.record(ctx, inv, "invoice.ship", map[string]any{"lines": len(lines)})
	return inv, nil
}

// ShipmentLines derives one stock request per product line. Keys are stable
// per invoice line so a retried shipment does not move goods twice.
func ShipmentLines(inv Invoice, at time.Time) []ShipmentLine {
	inbound := inv.Side == SidePayable
	isReturn := inv.Type == TypeCreditNote
	if isReturn {
		inbound = !inbound
	}
	var out []ShipmentLine
	for i, l := range inv.Lines {
		if !l.ProductID.Valid {
			continue
		}
		unit := LineSubtotal(l.Quantity, l.UnitPrice, l.DiscountPct).Div(l.Quantity).Round(4)
		out = append(out, ShipmentLine{
			InvoiceID:      inv.ID,
			LineNo:         i + 1,
			ProductID:      l.ProductID.UUID,
			WarehouseID:    inv.WarehouseID,
			Quantity:       l.Quantity,
			UnitCost:       unit,
			Inbound:        inbound,
			Return:         isReturn,
			IdempotencyKey: fmt.Sprintf("invoice:%s:line:%d", inv.ID, i+1),
			Reference:      inv.Number,
			ShippedAt:      at,
		})
	}
	return out
}

// GenerateNext clones a recurring template into a standard draft dated one
// interval after the previous generated invoice.
func (s *Service) GenerateNext(ctx context.Context, tenantID int64, templateID uuid.UUID) (Invoice, error) {
	var (
		template  Invoice
		generated int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		template, err = tx.GetInvoice(ctx, tenantID, templateID)
		if err != nil {
			return err
		}
		children, err := tx.ListInvoices(ctx, tenantID, ListFilter{TemplateID: templateID})
		if err != nil {
			return err
		}
		generated = len(children)
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if template.Type != TypeRecurring || template.RecurrenceMonths <= 0 {
		return Invoice{}, fmt.Errorf("%w: not a recurring invoice", ErrInvalidInvoice)
	}
	if template.Status == StatusDraft || template.Status == StatusCancelled {
		return Invoice{}, &InvalidStateError{From: template.Status, Action: "generate from"}
	}
	offset := template.RecurrenceMonths * (generated + 1)
	term := template.DueDate.Sub(template.IssueDate)
	issue := template.IssueDate.AddDate(0, offset, 0)
	return s.createInvoice(ctx, tenantID, InvoiceInput{
		Side:        template.Side,
		Type:        TypeStandard,
		PartyID:     template.PartyID,
		WarehouseID: template.WarehouseID,
		IssueDate:   issue,
		DueDate:     issue.Add(term),
		Lines:       append([]Line(nil), template.Lines...),
	}, uuid.NullUUID{UUID: template.ID, Valid: true})
}

// GetInvoice loads one invoice with lines and payments.
func (s *Service) GetInvoice(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoice(ctx, tenantID, id)
		return err
	})
	return inv, err
}

// ListInvoices returns invoices matching filter.
func (s *Service) ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, error) {
	var invoices []Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoices, err = tx.ListInvoices(ctx, tenantID, filter)
		return err
	})
	return invoices, err
}

// Overdue lists invoices of side past due at the current clock.
func (s *Service) Overdue(ctx context.Context, tenantID int64, side Side) ([]Invoice, error) {
	invoices, err := s.ListInvoices(ctx, tenantID, ListFilter{Side: side})
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []Invoice
	for _, inv := range invoices {
		if IsOverdue(inv, now) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// IsOverdue evaluates the overdue flag against the service clock.
func (s *Service) IsOverdue(inv Invoice) bool {
	return IsOverdue(inv, s.now())
}

// Aging totals the side's open invoices per bucket at asOf.
func (s *Service) Aging(ctx context.Context, tenantID int64, side Side, asOf time.Time) (AgingSummary, error) {
	if !side.Valid() {
		return AgingSummary{}, fmt.Errorf("%w: side %q", ErrInvalidInvoice, side)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	invoices, err := s.ListInvoices(ctx, tenantID, ListFilter{Side: side})
	if err != nil {
		return AgingSummary{}, err
	}
	return AgingTotals(invoices, asOf), nil
}

func (s *Service) record(ctx context.Context, inv Invoice, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = inv.Number
	meta["status"] = string(inv.Status)
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: inv.TenantID,
		Action:   action,
		Entity:   "invoice",
		EntityID: inv.ID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("invoice audit failed", slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
	}
}
