package integration

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
)

// AccountMap names the ledger accounts that operational postings land on.
type AccountMap struct {
	Cash       string
	Receivable string
	Payable    string
	Revenue    string
	Expense    string
	Tax        string
	Inventory  string
	COGS       string
	Adjustment string
}

// ErrAccountMapIncomplete indicates a required account code is missing.
var ErrAccountMapIncomplete = errors.New("integration: account map incomplete")

// Validate checks the accounts invoice postings need. Inventory accounts are
// optional; movement postings are skipped when they are blank.
func (m AccountMap) Validate() error {
	for _, code := range []string{m.Cash, m.Receivable, m.Payable, m.Revenue, m.Expense, m.Tax} {
		if code == "" {
			return ErrAccountMapIncomplete
		}
	}
	return nil
}

// leg is one side of a posting before sign normalisation.
type leg struct {
	account string
	amount  decimal.Decimal
	debit   bool
	memo    string
}

// journalLines turns legs into ledger lines. Negative amounts flip side,
// zero amounts are dropped.
func journalLines(legs ...leg) []accounting.JournalLine {
	lines := make([]accounting.JournalLine, 0, len(legs))
	for _, l := range legs {
		amount := l.amount.Round(2)
		if amount.IsZero() {
			continue
		}
		debit := l.debit
		if amount.IsNegative() {
			debit = !debit
			amount = amount.Neg()
		}
		line := accounting.JournalLine{AccountCode: l.account, Memo: l.memo}
		if debit {
			line.Debit = amount
		} else {
			line.Credit = amount
		}
		lines = append(lines, line)
	}
	return lines
}

func (m AccountMap) invoiceLegs(evt invoicing.InvoiceIssuedEvent) []leg {
	sign := decimal.NewFromInt(1)
	if evt.Cancelled {
		sign = sign.Neg()
	}
	subtotal, tax, total := evt.Subtotal.Mul(sign), evt.TaxTotal.Mul(sign), evt.Total.Mul(sign)
	if evt.Side == invoicing.SidePayable {
		return []leg{
			{account: m.Expense, amount: subtotal, debit: true, memo: evt.Number},
			{account: m.Tax, amount: tax, debit: true, memo: evt.Number},
			{account: m.Payable, amount: total, debit: false, memo: evt.PartyID},
		}
	}
	return []leg{
		{account: m.Receivable, amount: total, debit: true, memo: evt.PartyID},
		{account: m.Revenue, amount: subtotal, debit: false, memo: evt.Number},
		{account: m.Tax, amount: tax, debit: false, memo: evt.Number},
	}
}

func (m AccountMap) paymentLegs(evt invoicing.PaymentAppliedEvent) []leg {
	if evt.Side == invoicing.SidePayable {
		return []leg{
			{account: m.Payable, amount: evt.Amount, debit: true, memo: evt.Reference},
			{account: m.Cash, amount: evt.Amount, debit: false, memo: evt.Reference},
		}
	}
	return []leg{
		{account: m.Cash, amount: evt.Amount, debit: true, memo: evt.Reference},
		{account: m.Receivable, amount: evt.Amount, debit: false, memo: evt.Reference},
	}
}

// movementLegs returns nil for movements that do not change the ledger value
// of stock, such as transfers and production.
func (m AccountMap) movementLegs(evt inventory.MovementAppliedEvent) []leg {
	if m.Inventory == "" {
		return nil
	}
	var counter string
	switch evt.Type {
	case inventory.MovementOutSale, inventory.MovementInReturn:
		counter = m.COGS
	case inventory.MovementInPurchase, inventory.MovementOutReturn:
		counter = m.Expense
	case inventory.MovementInAdjustment, inventory.MovementOutAdjustment:
		counter = m.Adjustment
	default:
		return nil
	}
	if counter == "" {
		return nil
	}
	value := evt.Value()
	inbound := evt.Type.Direction() == inventory.DirectionIn
	return []leg{
		{account: m.Inventory, amount: value, debit: inbound, memo: evt.Reference},
		{account: counter, amount: value, debit: !inbound, memo: evt.Reference},
	}
}

// movementFor maps a shipment line onto the stock movement it causes.
func movementFor(line invoicing.ShipmentLine) inventory.MovementInput {
	input := inventory.MovementInput{
		IdempotencyKey: line.IdempotencyKey,
		ProductID:      line.ProductID,
		WarehouseID:    line.WarehouseID,
		Quantity:       line.Quantity,
		Reference:      line.Reference,
		Timestamp:      line.ShippedAt,
	}
	switch {
	case line.Inbound && line.Return:
		input.Type = inventory.MovementInReturn
	case line.Inbound:
		input.Type = inventory.MovementInPurchase
		input.UnitCost = decimal.NewNullDecimal(line.UnitCost)
	case line.Return:
		input.Type = inventory.MovementOutReturn
	default:
		input.Type = inventory.MovementOutSale
	}
	return input
}
