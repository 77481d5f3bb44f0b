package invoicing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInvoiceTotals(t *testing.T) {
	totals := InvoiceTotals([]Line{{Quantity: d("2"), UnitPrice: d("100"), DiscountPct: d("10"), TaxRatePct: d("21")}})
	require.True(t, totals.Subtotal.Equal(d("180")))
	require.True(t, totals.TaxTotal.Equal(d("37.8")))
	require.True(t, totals.Total.Equal(d("217.8")))

	multi := InvoiceTotals([]Line{
		{Quantity: d("3"), UnitPrice: d("9.99"), TaxRatePct: d("10")},
		{Quantity: d("1"), UnitPrice: d("0.015")},
	})
	require.True(t, multi.Subtotal.Equal(d("29.99")), multi.Subtotal.String())
	require.True(t, multi.TaxTotal.Equal(d("3")), multi.TaxTotal.String())
	require.True(t, multi.Total.Equal(d("32.99")))

	neg := totals.Negate()
	require.True(t, neg.Total.Equal(d("-217.8")))
}

func TestLineMath(t *testing.T) {
	require.True(t, LineSubtotal(d("4"), d("25"), decimal.Zero).Equal(d("100")))
	require.True(t, LineSubtotal(d("4"), d("25"), d("100")).IsZero())
	require.True(t, LineTax(d("200"), d("7.5")).Equal(d("15")))
}

func sentInvoice(total string) Invoice {
	return Invoice{ID: uuid.New(), Type: TypeStandard, Status: StatusSent, Total: d(total), PaidAmount: decimal.Zero}
}

func payment(ref, amount string) Payment {
	return Payment{ID: uuid.New(), Reference: ref, Amount: d(amount)}
}

func TestApplyPaymentSettlement(t *testing.T) {
	inv := sentInvoice("100")

	partial, err := ApplyPayment(inv, payment("p1", "60"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, partial.Status)
	require.True(t, partial.Pending().Equal(d("40")))
	require.Empty(t, inv.Payments)

	paid, err := ApplyPayment(partial, payment("p2", "40"))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, paid.Pending().IsZero())
	require.Len(t, paid.Payments, 2)

	reopened, err := ApplyPayment(paid, payment("p3", "-40"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, reopened.Status)

	back, err := ApplyPayment(reopened, payment("p4", "-60"))
	require.NoError(t, err)
	require.Equal(t, StatusSent, back.Status)
}

func TestApplyPaymentRejections(t *testing.T) {
	inv := sentInvoice("100")

	_, err := ApplyPayment(inv, payment("p1", "100.01"))
	require.ErrorIs(t, err, ErrOverpayment)
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Pending.Equal(d("100")))

	_, err = ApplyPayment(inv, payment("p1", "0"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ApplyPayment(inv, payment("p1", "-1"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	partial, err := ApplyPayment(inv, payment("p1", "10"))
	require.NoError(t, err)
	_, err = ApplyPayment(partial, payment("p1", "10"))
	require.ErrorIs(t, err, ErrDuplicatePayment)

	draft := inv
	draft.Status = StatusDraft
	_, err = ApplyPayment(draft, payment("p9", "10"))
	require.ErrorIs(t, err, ErrInvalidStatus)

	proforma := inv
	proforma.Type = TypeProforma
	_, err = ApplyPayment(proforma, payment("p9", "10"))
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestApplyPaymentCreditNoteRefund(t *testing.T) {
	inv := sentInvoice("-50")

	_, err := ApplyPayment(inv, payment("r1", "20"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	refunded, err := ApplyPayment(inv, payment("r1", "-50"))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, refunded.Status)

	_, err = ApplyPayment(inv, payment("r2", "-60"))
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	inv := sentInvoice("100")
	inv.DueDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	require.True(t, IsOverdue(inv, now))

	inv.DueDate = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	require.False(t, IsOverdue(inv, now), "due today is not overdue")

	inv.DueDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	paid, err := ApplyPayment(inv, payment("p1", "100"))
	require.NoError(t, err)
	require.False(t, IsOverdue(paid, now))

	cancelled := inv
	cancelled.Status = StatusCancelled
	require.False(t, IsOverdue(cancelled, now))
}

func TestBucketBoundaries(t *testing.T) {
	cases := map[int]AgingBucket{
		-5: BucketCurrent,
		0:  BucketCurrent,
		1:  Bucket0To30,
		30: Bucket0To30,
		31: Bucket31To60,
		60: Bucket31To60,
		61: Bucket61To90,
		90: Bucket61To90,
		91: BucketOver90,
	}
	for days, want := range cases {
		require.Equal(t, want, BucketFor(days), "days=%d", days)
	}
}

func TestAgingTotals(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	mk := func(total string, daysOverdue int) Invoice {
		inv := sentInvoice(total)
		inv.IssueDate = asOf.AddDate(0, 0, -120)
		inv.DueDate = asOf.AddDate(0, 0, -daysOverdue)
		return inv
	}
	partial, err := ApplyPayment(mk("200", 45), Payment{Reference: "p1", Amount: d("50"), PaidAt: asOf.AddDate(0, 0, -1)})
	require.NoError(t, err)
	later, err := ApplyPayment(mk("80", 10), Payment{Reference: "p2", Amount: d("80"), PaidAt: asOf.AddDate(0, 0, 5)})
	require.NoError(t, err)
	draft := mk("999", 100)
	draft.Status = StatusDraft

	invoices := []Invoice{mk("100", -3), mk("40", 30), partial, later, mk("10", 95), draft}
	summary := AgingTotals(invoices, asOf)

	byBucket := map[AgingBucket]AgingLine{}
	for _, l := range summary.Buckets {
		byBucket[l.Bucket] = l
	}
	require.Len(t, summary.Buckets, len(AgingBuckets))
	require.True(t, byBucket[BucketCurrent].Amount.Equal(d("100")))
	// a payment dated after asOf does not reduce the balance
	require.True(t, byBucket[Bucket0To30].Amount.Equal(d("120")))
	require.Equal(t, 2, byBucket[Bucket0To30].Count)
	require.True(t, byBucket[Bucket31To60].Amount.Equal(d("150")))
	require.True(t, byBucket[Bucket61To90].Amount.IsZero())
	require.True(t, byBucket[BucketOver90].Amount.Equal(d("10")))
	require.True(t, summary.Total.Equal(d("380")))

	groups := GroupByAging(invoices, asOf)
	require.Len(t, groups[Bucket0To30], 2)
	require.Empty(t, groups[Bucket61To90])
}
