package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fincore/internal/accounting"
)

// MaxTrendMonths bounds a monthly trend request.
const MaxTrendMonths = 24

// TrendPoint conveys one month of profit and cash movement.
type TrendPoint struct {
	Period   string          `json:"period"`
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
	CashIn   decimal.Decimal `json:"cash_in"`
	CashOut  decimal.Decimal `json:"cash_out"`
}

// MonthlyTrend returns one point per calendar month touching [from, to].
func (s *Service) MonthlyTrend(ctx context.Context, tenantID int64, from, to time.Time) ([]TrendPoint, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, ErrInvalidRange
	}
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []time.Time
	for m := start; !m.After(dateOnly(to)); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	if len(months) > MaxTrendMonths {
		return nil, ErrInvalidRange
	}

	points := make([]TrendPoint, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, month := range months {
		i, month := i, month
		g.Go(func() error {
			rows, err := s.ledger.PeriodActivity(gctx, tenantID, month, month.AddDate(0, 1, -1))
			if err != nil {
				return err
			}
			points[i] = s.trendPoint(month, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Service) trendPoint(month time.Time, rows []accounting.AccountBalance) TrendPoint {
	p := TrendPoint{Period: month.Format("2006-01")}
	for _, row := range rows {
		switch row.Type {
		case accounting.AccountTypeRevenue:
			p.Revenue = p.Revenue.Add(row.Movement())
		case accounting.AccountTypeExpense:
			p.Expenses = p.Expenses.Add(row.Movement())
		}
		if s.isCash(row.Code) {
			p.CashIn = p.CashIn.Add(row.Debit)
			p.CashOut = p.CashOut.Add(row.Credit)
		}
	}
	p.Net = p.Revenue.Sub(p.Expenses)
	return p
}
