package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/inventory"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// KPIRequest scopes a KPI snapshot to a tenant and an inclusive date window.
type KPIRequest struct {
	TenantID int64
	From     time.Time
	To       time.Time
}

// KPIDelta compares a figure with the same figure over the prior window.
type KPIDelta struct {
	Current   decimal.Decimal `json:"current"`
	Previous  decimal.Decimal `json:"previous"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// KPISnapshot contains the key finance indicators for a window.
type KPISnapshot struct {
	TenantID           int64     `json:"tenant_id"`
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	PriorFrom          time.Time `json:"prior_from"`
	PriorTo            time.Time `json:"prior_to"`
	Revenue            KPIDelta  `json:"revenue"`
	Expenses           KPIDelta  `json:"expenses"`
	Profit             KPIDelta  `json:"profit"`
	Cash               KPIDelta  `json:"cash"`
	ReceivablesCurrent KPIDelta  `json:"receivables_current"`
	ReceivablesOverdue KPIDelta  `json:"receivables_overdue"`
	PayablesCurrent    KPIDelta  `json:"payables_current"`
	PayablesOverdue    KPIDelta  `json:"payables_overdue"`
	InventoryValue     KPIDelta  `json:"inventory_value"`
	COGS               KPIDelta  `json:"cogs"`
	InventoryTurnover  KPIDelta  `json:"inventory_turnover"`
}

type figures struct {
	revenue        decimal.Decimal
	expenses       decimal.Decimal
	cash           decimal.Decimal
	arCurrent      decimal.Decimal
	arOverdue      decimal.Decimal
	apCurrent      decimal.Decimal
	apOverdue      decimal.Decimal
	inventoryValue decimal.Decimal
	cogs           decimal.Decimal
	turnover       decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ChangePercent is the change from prior to current as a percentage of |prior|.
// A zero prior yields zero.
func ChangePercent(current, prior decimal.Decimal) decimal.Decimal {
	if prior.IsZero() {
		return decimal.Zero
	}
	return current.Sub(prior).Div(prior.Abs()).Mul(hundred).Round(2)
}

func delta(current, prior decimal.Decimal) KPIDelta {
	return KPIDelta{Current: current.Round(2), Previous: prior.Round(2), ChangePct: ChangePercent(current, prior)}
}

// PriorWindow returns the window of the same length ending the day before from.
func PriorWindow(from, to time.Time) (time.Time, time.Time) {
	from, to = dateOnly(from), dateOnly(to)
	days := int(to.Sub(from).Hours() / 24)
	priorTo := from.AddDate(0, 0, -1)
	return priorTo.AddDate(0, 0, -days), priorTo
}

// KPIs computes the snapshot for req and the prior window.
func (s *Service) KPIs(ctx context.Context, req KPIRequest) (KPISnapshot, error) {
	if req.TenantID == 0 {
		return KPISnapshot{}, shared.ErrTenantRequired
	}
	if req.From.IsZero() || req.To.IsZero() || req.To.Before(req.From) {
		return KPISnapshot{}, ErrInvalidRange
	}
	from, to := dateOnly(req.From), dateOnly(req.To)
	key := fmt.Sprintf("kpi:%d:%s:%s", req.TenantID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	// the shared computation outlives any single caller's cancellation
	ch := s.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout)
		defer cancel()
		return s.computeKPIs(cctx, req.TenantID, from, to)
	})
	select {
	case <-ctx.Done():
		return KPISnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return KPISnapshot{}, res.Err
		}
		return res.Val.(KPISnapshot), nil
	}
}

func (s *Service) computeKPIs(ctx context.Context, tenantID int64, from, to time.Time) (KPISnapshot, error) {
	priorFrom, priorTo := PriorWindow(from, to)
	var current, prior figures
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.loadFigures(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		prior, err = s.loadFigures(gctx, tenantID, priorFrom, priorTo)
		return err
	})
	if err := g.Wait(); err != nil {
		return KPISnapshot{}, err
	}
	return KPISnapshot{
		TenantID:           tenantID,
		From:               from,
		To:                 to,
		PriorFrom:          priorFrom,
		PriorTo:            priorTo,
		Revenue:            delta(current.revenue, prior.revenue),
		Expenses:           delta(current.expenses, prior.expenses),
		Profit:             delta(current.revenue.Sub(current.expenses), prior.revenue.Sub(prior.expenses)),
		Cash:               delta(current.cash, prior.cash),
		ReceivablesCurrent: delta(current.arCurrent, prior.arCurrent),
		ReceivablesOverdue: delta(current.arOverdue, prior.arOverdue),
		PayablesCurrent:    delta(current.apCurrent, prior.apCurrent),
		PayablesOverdue:    delta(current.apOverdue, prior.apOverdue),
		InventoryValue:     delta(current.inventoryValue, prior.inventoryValue),
		COGS:               delta(current.cogs, prior.cogs),
		InventoryTurnover:  delta(current.turnover, prior.turnover),
	}, nil
}

func (s *Service) loadFigures(ctx context.Context, tenantID int64, from, to time.Time) (figures, error) {
	var (
		activity         []accounting.AccountBalance
		opening, closing []inventory.Valuation
		invoices         []invoicing.Invoice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activity, err = s.ledger.PeriodActivity(gctx, tenantID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		opening, err = s.stock.ValuateAll(gctx, tenantID, from.Add(-time.Nanosecond))
		return err
	})
	g.Go(func() error {
		var err error
		closing, err = s.stock.ValuateAll(gctx, tenantID, endOfDay(to))
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = s.invoices.ListInvoices(gctx, tenantID, invoicing.ListFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return figures{}, err
	}

	var f figures
	for _, row := range activity {
		switch row.Type {
		case accounting.AccountTypeRevenue:
			f.revenue = f.revenue.Add(row.Movement())
		case accounting.AccountTypeExpense:
			f.expenses = f.expenses.Add(row.Movement())
		}
		if s.isCash(row.Code) {
			f.cash = f.cash.Add(row.Balance())
		}
	}
	f.arCurrent, f.arOverdue = splitAging(invoices, invoicing.SideReceivable, to)
	f.apCurrent, f.apOverdue = splitAging(invoices, invoicing.SidePayable, to)

	openValue, openIssued := sumValues(opening)
	closeValue, closeIssued := sumValues(closing)
	f.inventoryValue = closeValue
	f.cogs = closeIssued.Sub(openIssued)
	f.turnover = inventory.Turnover(f.cogs, inventory.AverageInventory(openValue, closeValue)).Round(4)
	return f, nil
}

// splitAging sums amounts pending at asOf into not-yet-due and overdue.
func splitAging(invoices []invoicing.Invoice, side invoicing.Side, asOf time.Time) (current, overdue decimal.Decimal) {
	var scoped []invoicing.Invoice
	for _, inv := range invoices {
		if inv.Side == side {
			scoped = append(scoped, inv)
		}
	}
	for bucket, group := range invoicing.GroupByAging(scoped, asOf) {
		for _, inv := range group {
			if bucket == invoicing.BucketCurrent {
				current = current.Add(inv.PendingAt(asOf))
			} else {
				overdue = overdue.Add(inv.PendingAt(asOf))
			}
		}
	}
	return current, overdue
}
