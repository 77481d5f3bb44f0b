package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/shared"
	_ "github.com/odyssey-erp/fincore/testing"
)

const tenant int64 = 11

var fixedNow = time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var accounts = AccountMap{
	Cash:       "1000",
	Receivable: "1100",
	Payable:    "2000",
	Revenue:    "4000",
	Expense:    "5100",
	Tax:        "2100",
	Inventory:  "1200",
	COGS:       "5000",
	Adjustment: "5200",
}

type env struct {
	ledger    *accounting.Service
	stock     *inventory.Service
	invoices  *invoicing.Service
	hooks     *Hooks
	productID uuid.UUID
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	now := func() time.Time { return fixedNow }

	ledger := accounting.NewService(accounting.NewMemoryRepository(), nil, shared.NewLocalLocker())
	ledger.WithNow(now)
	for _, in := range []accounting.CreateAccountInput{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset},
		{Code: "1100", Name: "Receivables", Type: accounting.AccountTypeAsset},
		{Code: "1200", Name: "Inventory", Type: accounting.AccountTypeAsset},
		{Code: "2000", Name: "Payables", Type: accounting.AccountTypeLiability},
		{Code: "2100", Name: "Tax", Type: accounting.AccountTypeLiability},
		{Code: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue},
		{Code: "5000", Name: "COGS", Type: accounting.AccountTypeExpense},
		{Code: "5100", Name: "Purchases", Type: accounting.AccountTypeExpense},
		{Code: "5200", Name: "Stock adjustments", Type: accounting.AccountTypeExpense},
	} {
		_, err := ledger.CreateAccount(ctx, tenant, in)
		require.NoError(t, err)
	}
	_, err := ledger.CreatePeriod(ctx, tenant, accounting.PeriodInput{
		Code:      "2025-04",
		StartDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	stock := inventory.NewService(inventory.NewMemoryRepository(), nil, inventory.ServiceConfig{})
	stock.WithNow(now)
	product, err := stock.UpsertProduct(ctx, tenant, inventory.ProductInput{
		SKU:           "WID-1",
		Name:          "Widget",
		CostingMethod: inventory.CostingFIFO,
		CostPrice:     d("6"),
	})
	require.NoError(t, err)

	hooks := NewHooks(ledger, stock, accounts, nil)
	stock.WithListener(hooks)

	invoices := invoicing.NewService(invoicing.NewMemoryRepository(), nil)
	invoices.WithNow(now)
	invoices.WithLedger(hooks)
	invoices.WithStock(hooks)
	return env{ledger: ledger, stock: stock, invoices: invoices, hooks: hooks, productID: product.ID}
}

func (e env) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.ComputeAccountBalance(context.Background(), tenant, code, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return b
}

func (e env) sendAndShip(t *testing.T, input invoicing.InvoiceInput) invoicing.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := e.invoices.CreateInvoice(ctx, tenant, input)
	require.NoError(t, err)
	inv, err = e.invoices.Send(ctx, tenant, inv.ID)
	require.NoError(t, err)
	inv, err = e.invoices.Ship(ctx, tenant, inv.ID)
	require.NoError(t, err)
	return inv
}

func TestPurchaseSaleAndPaymentPostToLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	product := uuid.NullUUID{UUID: e.productID, Valid: true}
	issue := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	e.sendAndShip(t, invoicing.InvoiceInput{
		Side:        invoicing.SidePayable,
		PartyID:     "SUP-1",
		WarehouseID: 1,
		IssueDate:   issue,
		Lines:       []invoicing.Line{{ProductID: product, Description: "Widgets", Quantity: d("10"), UnitPrice: d("6")}},
	})
	level, err := e.stock.GetLevel(ctx, tenant, e.productID, 1)
	require.NoError(t, err)
	require.True(t, level.QuantityOnHand.Equal(d("10")))
	require.True(t, e.balance(t, "1200").Equal(d("60")))
	require.True(t, e.balance(t, "2000").Equal(d("60")))
	require.True(t, e.balance(t, "5100").IsZero())

	sale := e.sendAndShip(t, invoicing.InvoiceInput{
		PartyID:     "CUST-1",
		WarehouseID: 1,
		IssueDate:   issue,
		Lines:       []invoicing.Line{{ProductID: product, Description: "Widgets", Quantity: d("4"), UnitPrice: d("10"), TaxRatePct: d("10")}},
	})
	require.True(t, e.balance(t, "1100").Equal(d("44")))
	require.True(t, e.balance(t, "4000").Equal(d("40")))
	require.True(t, e.balance(t, "2100").Equal(d("4")))
	require.True(t, e.balance(t, "5000").Equal(d("24")))
	require.True(t, e.balance(t, "1200").Equal(d("36")))

	_, err = e.invoices.ApplyPayment(ctx, tenant, invoicing.PaymentInput{InvoiceID: sale.ID, Reference: "BANK-1", Amount: d("44")})
	require.NoError(t, err)
	require.True(t, e.balance(t, "1000").Equal(d("44")))
	require.True(t, e.balance(t, "1100").IsZero())

	tb, err := e.ledger.TrialBalance(ctx, tenant, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	var debit, credit decimal.Decimal
	for _, row := range tb {
		debit = debit.Add(row.Debit)
		credit = credit.Add(row.Credit)
	}
	require.True(t, debit.Equal(credit))
}

func TestInvoiceReplayIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	evt := invoicing.InvoiceIssuedEvent{
		TenantID:  tenant,
		InvoiceID: uuid.New(),
		Number:    "INV-000001",
		Side:      invoicing.SideReceivable,
		PartyID:   "CUST-1",
		IssueDate: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
		Subtotal:  d("100"),
		TaxTotal:  d("0"),
		Total:     d("100"),
	}
	require.NoError(t, e.hooks.InvoiceIssued(ctx, evt))
	require.NoError(t, e.hooks.InvoiceIssued(ctx, evt))

	entries, err := e.ledger.ListEntries(ctx, tenant, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "invoicing.invoice", entries[0].SourceModule)
	require.True(t, e.balance(t, "1100").Equal(d("100")))

	evt.Cancelled = true
	require.NoError(t, e.hooks.InvoiceIssued(ctx, evt))
	require.True(t, e.balance(t, "1100").IsZero())
	require.True(t, e.balance(t, "4000").IsZero())
}

func TestCreditNoteSwapsSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	evt := invoicing.InvoiceIssuedEvent{
		TenantID:  tenant,
		InvoiceID: uuid.New(),
		Number:    "CN-000001",
		Side:      invoicing.SideReceivable,
		Type:      invoicing.TypeCreditNote,
		IssueDate: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
		Subtotal:  d("-50"),
		TaxTotal:  d("-5"),
		Total:     d("-55"),
	}
	require.NoError(t, e.hooks.InvoiceIssued(ctx, evt))
	require.True(t, e.balance(t, "1100").Equal(d("-55")))
	require.True(t, e.balance(t, "4000").Equal(d("-50")))
	require.True(t, e.balance(t, "2100").Equal(d("-5")))
}

func TestPostingOutsideAnyPeriodFails(t *testing.T) {
	e := newEnv(t)
	err := e.hooks.PaymentApplied(context.Background(), invoicing.PaymentAppliedEvent{
		TenantID:  tenant,
		PaymentID: uuid.New(),
		Side:      invoicing.SideReceivable,
		Reference: "LATE",
		Amount:    d("10"),
		PaidAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, accounting.ErrPeriodNotFound)
}

func TestAdjustmentMovementPostsAdjustmentEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.stock.ApplyMovement(ctx, tenant, inventory.MovementInput{
		ProductID:   e.productID,
		WarehouseID: 2,
		Type:        inventory.MovementInAdjustment,
		Quantity:    d("5"),
		UnitCost:    decimal.NewNullDecimal(d("7")),
		Reference:   "COUNT-1",
		Timestamp:   fixedNow,
	})
	require.NoError(t, err)

	entries, err := e.ledger.ListEntries(ctx, tenant, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, accounting.EntryTypeAdjustment, entries[0].Type)
	require.True(t, e.balance(t, "1200").Equal(d("35")))
	require.True(t, e.balance(t, "5200").Equal(d("-35")))

	_, err = e.stock.ApplyMovement(ctx, tenant, inventory.MovementInput{
		ProductID:              e.productID,
		WarehouseID:            2,
		DestinationWarehouseID: 3,
		Type:                   inventory.MovementTransfer,
		Quantity:               d("2"),
		Timestamp:              fixedNow,
	})
	require.NoError(t, err)
	entries, err = e.ledger.ListEntries(ctx, tenant, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMovementForShipmentDirections(t *testing.T) {
	base := invoicing.ShipmentLine{ProductID: uuid.New(), WarehouseID: 4, Quantity: d("1"), UnitCost: d("3")}
	cases := []struct {
		inbound, isReturn bool
		want              inventory.MovementType
		costed            bool
	}{
		{false, false, inventory.MovementOutSale, false},
		{false, true, inventory.MovementOutReturn, false},
		{true, false, inventory.MovementInPurchase, true},
		{true, true, inventory.MovementInReturn, false},
	}
	for _, tc := range cases {
		line := base
		line.Inbound, line.Return = tc.inbound, tc.isReturn
		got := movementFor(line)
		require.Equal(t, tc.want, got.Type)
		require.Equal(t, tc.costed, got.UnitCost.Valid)
	}
}

func TestAccountMapValidate(t *testing.T) {
	require.NoError(t, accounts.Validate())
	missing := accounts
	missing.Tax = ""
	require.ErrorIs(t, missing.Validate(), ErrAccountMapIncomplete)
}
