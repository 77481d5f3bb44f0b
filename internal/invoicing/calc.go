package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// SettlementTolerance is the largest pending amount treated as settled.
	SettlementTolerance = decimal.New(5, -3)
)

// LineSubtotal = qty × unitPrice × (1 − discountPct/100).
func LineSubtotal(qty, unitPrice, discountPct decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice).Mul(decimal.NewFromInt(1).Sub(discountPct.Div(hundred)))
}

// LineTax = subtotal × taxRatePct/100.
func LineTax(subtotal, taxRatePct decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(taxRatePct).Div(hundred)
}

// Totals are invoice amounts rounded to cents.
type Totals struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
	Total    decimal.Decimal
}

// InvoiceTotals sums line subtotals and taxes.
func InvoiceTotals(lines []Line) Totals {
	var subtotal, tax decimal.Decimal
	for _, l := range lines {
		sub := LineSubtotal(l.Quantity, l.UnitPrice, l.DiscountPct)
		subtotal = subtotal.Add(sub)
		tax = tax.Add(LineTax(sub, l.TaxRatePct))
	}
	subtotal, tax = subtotal.Round(2), tax.Round(2)
	return Totals{Subtotal: subtotal, TaxTotal: tax, Total: subtotal.Add(tax)}
}

// Negate flips the sign of every amount, used for credit notes.
func (t Totals) Negate() Totals {
	return Totals{Subtotal: t.Subtotal.Neg(), TaxTotal: t.TaxTotal.Neg(), Total: t.Total.Neg()}
}

func validateLine(l Line) error {
	switch {
	case !l.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	case l.UnitPrice.IsNegative():
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidLine)
	case l.DiscountPct.IsNegative() || l.DiscountPct.GreaterThan(hundred):
		return fmt.Errorf("%w: discount must be within 0..100", ErrInvalidLine)
	case l.TaxRatePct.IsNegative():
		return fmt.Errorf("%w: tax rate must not be negative", ErrInvalidLine)
	}
	return nil
}

// settlementStatus derives the paid state from total and cumulative payments.
func settlementStatus(total, paid decimal.Decimal) Status {
	switch {
	case total.Sub(paid).Abs().LessThan(SettlementTolerance):
		return StatusPaid
	case paid.IsZero():
		return StatusSent
	default:
		return StatusPartial
	}
}

// ApplyPayment returns inv with p appended and PaidAmount and Status
// recomputed. Amounts are signed like the invoice total; the cumulative paid
// amount must stay between zero and the total.
func ApplyPayment(inv Invoice, p Payment) (Invoice, error) {
	if inv.Type == TypeProforma {
		return inv, &InvalidStateError{From: inv.Status, Action: "pay proforma"}
	}
	switch inv.Status {
	case StatusSent, StatusPartial, StatusPaid:
	default:
		return inv, &InvalidStateError{From: inv.Status, Action: "pay"}
	}
	if p.Amount.IsZero() {
		return inv, ErrInvalidAmount
	}
	for _, existing := range inv.Payments {
		if existing.Reference == p.Reference {
			return inv, fmt.Errorf("%w: %s", ErrDuplicatePayment, p.Reference)
		}
	}
	paid := inv.PaidAmount.Add(p.Amount)
	total := inv.Total
	if total.IsNegative() {
		paid, total = paid.Neg(), total.Neg()
	}
	if paid.IsNegative() {
		return inv, fmt.Errorf("%w: compensation exceeds amount paid", ErrInvalidAmount)
	}
	if paid.Sub(total).GreaterThanOrEqual(SettlementTolerance) {
		return inv, &OverpaymentError{Pending: inv.Pending(), Amount: p.Amount}
	}
	out := inv
	out.Payments = append(append([]Payment(nil), inv.Payments...), p)
	out.PaidAmount = inv.PaidAmount.Add(p.Amount)
	out.Status = settlementStatus(out.Total, out.PaidAmount)
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsOverdue reports whether the due date has passed with money still owed.
// It is evaluated against now on every read and never stored.
func IsOverdue(inv Invoice, now time.Time) bool {
	if !inv.Outstanding() {
		return false
	}
	pending := inv.Pending()
	if inv.Total.IsNegative() {
		pending = pending.Neg()
	}
	return pending.IsPositive() && dateOnly(inv.DueDate).Before(dateOnly(now))
}

// DaysOverdue counts whole days between the due date and asOf.
func DaysOverdue(due, asOf time.Time) int {
	return int(dateOnly(asOf).Sub(dateOnly(due)).Hours() / 24)
}

// AgingBucket classifies outstanding invoices by days past due.
type AgingBucket string

const (
	BucketCurrent AgingBucket = "current"
	Bucket0To30   AgingBucket = "0-30"
	Bucket31To60  AgingBucket = "31-60"
	Bucket61To90  AgingBucket = "61-90"
	BucketOver90  AgingBucket = "90+"
)

// AgingBuckets lists buckets from youngest to oldest.
var AgingBuckets = []AgingBucket{BucketCurrent, Bucket0To30, Bucket31To60, Bucket61To90, BucketOver90}

// BucketFor maps days overdue to its bucket. Not yet due is current.
func BucketFor(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return Bucket0To30
	case daysOverdue <= 60:
		return Bucket31To60
	case daysOverdue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// openAt reports whether inv had a balance outstanding at asOf.
func openAt(inv Invoice, asOf time.Time) bool {
	if inv.Type == TypeProforma || inv.IssueDate.After(asOf) {
		return false
	}
	switch inv.Status {
	case StatusSent, StatusPartial, StatusPaid:
		return !inv.PendingAt(asOf).IsZero()
	}
	return false
}

// GroupByAging partitions invoices open at asOf into aging buckets.
func GroupByAging(invoices []Invoice, asOf time.Time) map[AgingBucket][]Invoice {
	out := make(map[AgingBucket][]Invoice, len(AgingBuckets))
	for _, inv := range invoices {
		if !openAt(inv, asOf) {
			continue
		}
		b := BucketFor(DaysOverdue(inv.DueDate, asOf))
		out[b] = append(out[b], inv)
	}
	return out
}

// AgingLine totals one bucket.
type AgingLine struct {
	Bucket AgingBucket     `json:"bucket"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// AgingSummary is the per-bucket pending amount plus grand total.
type AgingSummary struct {
	AsOf    time.Time       `json:"as_of"`
	Buckets []AgingLine     `json:"buckets"`
	Total   decimal.Decimal `json:"total"`
}

// AgingTotals sums pending amounts at asOf per bucket, in bucket order.
func AgingTotals(invoices []Invoice, asOf time.Time) AgingSummary {
	groups := GroupByAging(invoices, asOf)
	summary := AgingSummary{AsOf: asOf, Total: decimal.Zero}
	for _, b := range AgingBuckets {
		line := AgingLine{Bucket: b, Amount: decimal.Zero}
		for _, inv := range groups[b] {
			line.Count++
			line.Amount = line.Amount.Add(inv.PendingAt(asOf))
		}
		summary.Total = summary.Total.Add(line.Amount)
		summary.Buckets = append(summary.Buckets, line)
	}
	return summary
}
