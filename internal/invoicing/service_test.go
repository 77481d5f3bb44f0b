package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/fincore/testing"
)

const tenant int64 = 9

var fixedNow = time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

type stubLedger struct {
	issued   []InvoiceIssuedEvent
	payments []PaymentAppliedEvent
	err      error
}

func (l *stubLedger) InvoiceIssued(_ context.Context, evt InvoiceIssuedEvent) error {
	l.issued = append(l.issued, evt)
	return l.err
}

func (l *stubLedger) PaymentApplied(_ context.Context, evt PaymentAppliedEvent) error {
	l.payments = append(l.payments, evt)
	return l.err
}

type stubStock struct {
	lines []ShipmentLine
	err   error
}

func (s *stubStock) Ship(_ context.Context, _ int64, lines []ShipmentLine) error {
	s.lines = append(s.lines, lines...)
	return s.err
}

func newService() (*Service, *stubLedger, *stubStock) {
	svc := NewService(NewMemoryRepository(), nil)
	svc.WithNow(func() time.Time { return fixedNow })
	ledger, stock := &stubLedger{}, &stubStock{}
	svc.WithLedger(ledger)
	svc.WithStock(stock)
	return svc, ledger, stock
}

func invoiceInput(product uuid.UUID) InvoiceInput {
	return InvoiceInput{
		PartyID:     "CUST-1",
		WarehouseID: 3,
		IssueDate:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Lines: []Line{
			{ProductID: uuid.NullUUID{UUID: product, Valid: true}, Description: "Widget", Quantity: d("2"), UnitPrice: d("100"), DiscountPct: d("10"), TaxRatePct: d("21")},
			{Description: "Service fee", Quantity: d("1"), UnitPrice: d("20")},
		},
	}
}

func TestCreateInvoiceDefaults(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, "INV-000001", inv.Number)
	require.Equal(t, SideReceivable, inv.Side)
	require.Equal(t, TypeStandard, inv.Type)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.True(t, inv.Subtotal.Equal(d("200")))
	require.True(t, inv.TaxTotal.Equal(d("37.8")))
	require.True(t, inv.Total.Equal(d("237.8")))

	second, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, "INV-000002", second.Number)

	bill := invoiceInput(uuid.New())
	bill.Side = SidePayable
	created, err := svc.CreateInvoice(ctx, tenant, bill)
	require.NoError(t, err)
	require.Equal(t, "AP-INV-000001", created.Number)

	credit := invoiceInput(uuid.New())
	credit.Type = TypeCreditNote
	cn, err := svc.CreateInvoice(ctx, tenant, credit)
	require.NoError(t, err)
	require.True(t, cn.Total.Equal(d("-237.8")))
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	in := invoiceInput(uuid.New())
	in.Lines = nil
	_, err := svc.CreateInvoice(ctx, tenant, in)
	require.ErrorIs(t, err, ErrNoLines)

	in = invoiceInput(uuid.New())
	in.Lines[0].Quantity = d("0")
	_, err = svc.CreateInvoice(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInvalidLine)

	in = invoiceInput(uuid.New())
	in.Lines[0].DiscountPct = d("120")
	_, err = svc.CreateInvoice(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInvalidLine)

	in = invoiceInput(uuid.New())
	in.DueDate = in.IssueDate.AddDate(0, 0, -1)
	_, err = svc.CreateInvoice(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInvalidInvoice)

	in = invoiceInput(uuid.New())
	in.Type = TypeRecurring
	_, err = svc.CreateInvoice(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInvalidInvoice)
}

func TestLifecycleWithPayments(t *testing.T) {
	svc, ledger, _ := newService()
	ctx := context.Background()
	inv, err := svc.CreateInvoice(ctx, tenant, InvoiceInput{
		PartyID:   "CUST-1",
		IssueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Lines:     []Line{{Quantity: d("1"), UnitPrice: d("100")}},
	})
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "early", Amount: d("10")})
	require.ErrorIs(t, err, ErrInvalidStatus)

	sent, err := svc.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.True(t, svc.IsOverdue(sent))
	require.Len(t, ledger.issued, 1)
	require.True(t, ledger.issued[0].Total.Equal(d("100")))

	overdue, err := svc.Overdue(ctx, tenant, SideReceivable)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	partial, err := svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "TRX-1", Amount: d("60")})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, partial.Status)
	require.True(t, partial.Pending().Equal(d("40")))

	replayed, err := svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "TRX-1", Amount: d("60")})
	require.NoError(t, err)
	require.True(t, replayed.Pending().Equal(d("40")))
	require.Len(t, ledger.payments, 2)
	require.Equal(t, ledger.payments[0].PaymentID, ledger.payments[1].PaymentID)

	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "TRX-1", Amount: d("61")})
	require.ErrorIs(t, err, ErrDuplicatePayment)

	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "TRX-2", Amount: d("41")})
	require.ErrorIs(t, err, ErrOverpayment)

	paid, err := svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "TRX-2", Amount: d("40")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, paid.Pending().IsZero())
	require.False(t, svc.IsOverdue(paid))

	stored, err := svc.GetInvoice(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, stored.Status)
	require.Len(t, stored.Payments, 2)
	require.Len(t, ledger.payments, 3)

	_, err = svc.Cancel(ctx, tenant, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestLedgerFailureKeepsPayment(t *testing.T) {
	svc, ledger, _ := newService()
	ctx := context.Background()
	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)

	ledger.err = errors.New("period locked")
	sent, err := svc.Send(ctx, tenant, inv.ID)
	var pending *LedgerPostError
	require.ErrorAs(t, err, &pending)
	require.Equal(t, StatusSent, sent.Status)

	stored, err := svc.GetInvoice(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, stored.Status)

	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "R1", Amount: d("50")})
	require.ErrorAs(t, err, &pending)
	require.Len(t, ledger.payments, 1)

	ledger.err = nil
	replayed, err := svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "R1", Amount: d("50")})
	require.NoError(t, err)
	require.Len(t, replayed.Payments, 1)
	require.Len(t, ledger.payments, 2)
	require.Equal(t, ledger.payments[0].PaymentID, ledger.payments[1].PaymentID)
	require.True(t, ledger.payments[1].Amount.Equal(d("50")))
}

func TestRepostResendsInvoiceAndPayments(t *testing.T) {
	svc, ledger, _ := newService()
	ctx := context.Background()
	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)

	_, err = svc.Repost(ctx, tenant, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	ledger.err = errors.New("period locked")
	_, err = svc.Send(ctx, tenant, inv.ID)
	require.Error(t, err)
	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "R1", Amount: d("50")})
	require.Error(t, err)

	_, err = svc.Repost(ctx, tenant, inv.ID)
	var pending *LedgerPostError
	require.ErrorAs(t, err, &pending)

	ledger.err = nil
	ledger.issued, ledger.payments = nil, nil
	reposted, err := svc.Repost(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, reposted.Status)
	require.Len(t, ledger.issued, 1)
	require.Equal(t, inv.ID, ledger.issued[0].InvoiceID)
	require.Len(t, ledger.payments, 1)
	require.Equal(t, "R1", ledger.payments[0].Reference)
}

func TestCancel(t *testing.T) {
	svc, ledger, _ := newService()
	ctx := context.Background()

	draft, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Empty(t, ledger.issued)

	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)
	_, err = svc.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Len(t, ledger.issued, 2)
	require.True(t, ledger.issued[1].Cancelled)

	_, err = svc.Send(ctx, tenant, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestProformaNeverPostsOrAcceptsPayments(t *testing.T) {
	svc, ledger, _ := newService()
	ctx := context.Background()
	in := invoiceInput(uuid.New())
	in.Type = TypeProforma
	inv, err := svc.CreateInvoice(ctx, tenant, in)
	require.NoError(t, err)
	require.Equal(t, "PRO-000001", inv.Number)

	sent, err := svc.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.Empty(t, ledger.issued)

	_, err = svc.ApplyPayment(ctx, tenant, PaymentInput{InvoiceID: inv.ID, Reference: "x", Amount: d("1")})
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.False(t, svc.IsOverdue(sent))
}

func TestShip(t *testing.T) {
	svc, _, stock := newService()
	ctx := context.Background()
	product := uuid.New()
	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(product))
	require.NoError(t, err)

	_, err = svc.Ship(ctx, tenant, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	shipped, err := svc.Ship(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)

	require.Len(t, stock.lines, 1)
	line := stock.lines[0]
	require.Equal(t, product, line.ProductID)
	require.EqualValues(t, 3, line.WarehouseID)
	require.False(t, line.Inbound)
	require.False(t, line.Return)
	require.True(t, line.UnitCost.Equal(d("90")))
	require.Equal(t, "invoice:"+inv.ID.String()+":line:1", line.IdempotencyKey)

	_, err = svc.Ship(ctx, tenant, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestShipmentDirections(t *testing.T) {
	product := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	base := Invoice{ID: uuid.New(), WarehouseID: 1, Lines: []Line{{ProductID: product, Quantity: d("1"), UnitPrice: d("5")}}}
	cases := []struct {
		side    Side
		typ     InvoiceType
		inbound bool
		ret     bool
	}{
		{SideReceivable, TypeStandard, false, false},
		{SideReceivable, TypeCreditNote, true, true},
		{SidePayable, TypeStandard, true, false},
		{SidePayable, TypeCreditNote, false, true},
	}
	for _, tc := range cases {
		inv := base
		inv.Side, inv.Type = tc.side, tc.typ
		lines := ShipmentLines(inv, fixedNow)
		require.Len(t, lines, 1)
		require.Equal(t, tc.inbound, lines[0].Inbound, "%s %s", tc.side, tc.typ)
		require.Equal(t, tc.ret, lines[0].Return, "%s %s", tc.side, tc.typ)
	}
}

func TestGenerateNextFromRecurring(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	in := invoiceInput(uuid.New())
	in.Type = TypeRecurring
	in.RecurrenceMonths = 1
	in.DueDate = time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	template, err := svc.CreateInvoice(ctx, tenant, in)
	require.NoError(t, err)

	_, err = svc.GenerateNext(ctx, tenant, template.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Send(ctx, tenant, template.ID)
	require.NoError(t, err)

	first, err := svc.GenerateNext(ctx, tenant, template.ID)
	require.NoError(t, err)
	require.Equal(t, TypeStandard, first.Type)
	require.Equal(t, StatusDraft, first.Status)
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), first.IssueDate)
	require.Equal(t, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), first.DueDate)
	require.True(t, first.TemplateID.Valid)
	require.True(t, first.Total.Equal(template.Total))

	second, err := svc.GenerateNext(ctx, tenant, template.ID)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), second.IssueDate)

	_, err = svc.GenerateNext(ctx, tenant, first.ID)
	require.ErrorIs(t, err, ErrInvalidInvoice)
}

func TestUpdateDraft(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	inv, err := svc.CreateInvoice(ctx, tenant, invoiceInput(uuid.New()))
	require.NoError(t, err)

	edit := invoiceInput(uuid.New())
	edit.Lines = edit.Lines[1:]
	edit.Side = SidePayable
	updated, err := svc.UpdateDraft(ctx, tenant, inv.ID, edit)
	require.NoError(t, err)
	require.Equal(t, SideReceivable, updated.Side)
	require.True(t, updated.Total.Equal(d("20")))

	_, err = svc.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	_, err = svc.UpdateDraft(ctx, tenant, inv.ID, edit)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestAgingBySide(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	mk := func(side Side, due time.Time) {
		in := invoiceInput(uuid.New())
		in.Side = side
		in.IssueDate = due.AddDate(0, 0, -30)
		in.DueDate = due
		inv, err := svc.CreateInvoice(ctx, tenant, in)
		require.NoError(t, err)
		_, err = svc.Send(ctx, tenant, inv.ID)
		require.NoError(t, err)
	}
	mk(SideReceivable, fixedNow.AddDate(0, 0, -40))
	mk(SideReceivable, fixedNow.AddDate(0, 0, 5))
	mk(SidePayable, fixedNow.AddDate(0, 0, -100))

	ar, err := svc.Aging(ctx, tenant, SideReceivable, time.Time{})
	require.NoError(t, err)
	require.True(t, ar.Total.Equal(d("475.6")))
	require.True(t, ar.Buckets[0].Amount.Equal(d("237.8")))
	require.True(t, ar.Buckets[2].Amount.Equal(d("237.8")))

	ap, err := svc.Aging(ctx, tenant, SidePayable, time.Time{})
	require.NoError(t, err)
	require.True(t, ap.Buckets[4].Amount.Equal(d("237.8")))

	_, err = svc.Aging(ctx, tenant, "other", time.Time{})
	require.ErrorIs(t, err, ErrInvalidInvoice)
}
