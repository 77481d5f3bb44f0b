package reports

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/accounting"
	"github.com/odyssey-erp/fincore/internal/shared"
	_ "github.com/odyssey-erp/fincore/testing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildTrialBalance(t *testing.T) {
	accounts := []accounting.AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Opening: d("1000"), Debit: d("200"), Credit: d("150")},
		{Code: "1000.10", Name: "Bank", Type: accounting.AccountTypeAsset, Opening: d("500"), Debit: d("100"), Credit: d("50")},
		{Code: "2000", Name: "Accounts Payable", Type: accounting.AccountTypeLiability, Debit: d("10"), Credit: d("110")},
	}

	tb := BuildTrialBalance(accounts)
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "1000", tb.Groups[0].Key)
	require.Len(t, tb.Groups[0].Accounts, 2)
	require.True(t, tb.TotalDebit.Equal(d("310")))
	require.True(t, tb.TotalCredit.Equal(d("310")))
	require.True(t, tb.Balanced())
	require.True(t, tb.Groups[0].Accounts[0].Closing.Equal(d("1050")))
	require.True(t, tb.Groups[1].Accounts[0].Closing.Equal(d("100")))
}

func TestBuildProfitAndLoss(t *testing.T) {
	accounts := []accounting.AccountBalance{
		{Code: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue, Credit: d("1200")},
		{Code: "5000", Name: "COGS", Type: accounting.AccountTypeExpense, Debit: d("300")},
		{Code: "5100", Name: "Marketing", Type: accounting.AccountTypeExpense, Debit: d("250"), Credit: d("50")},
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: d("700")},
	}

	pl := BuildProfitAndLoss(accounts)
	require.True(t, pl.Revenue.Total.Equal(d("1200")))
	require.True(t, pl.Expense.Total.Equal(d("500")))
	require.True(t, pl.NetIncome.Equal(d("700")))
}

func TestBuildBalanceSheetBalances(t *testing.T) {
	accounts := []accounting.AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: d("1100"), Credit: d("300")},
		{Code: "2000", Name: "AP", Type: accounting.AccountTypeLiability, Debit: d("10"), Credit: d("210")},
		{Code: "3000", Name: "Equity", Type: accounting.AccountTypeEquity, Credit: d("500")},
		{Code: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue, Credit: d("400")},
		{Code: "5000", Name: "Rent", Type: accounting.AccountTypeExpense, Debit: d("300")},
	}

	bs := BuildBalanceSheet(accounts)
	require.True(t, bs.Assets.Total.Equal(d("800")))
	require.True(t, bs.Liabilities.Total.Equal(d("200")))
	require.True(t, bs.Equity.Total.Equal(d("600")))
	require.Equal(t, CurrentEarningsCode, bs.Equity.Accounts[len(bs.Equity.Accounts)-1].Code)
	require.True(t, bs.TotalLiabilitiesAndEquity.Equal(bs.Assets.Total))
}

type fakeSource struct {
	balances []accounting.AccountBalance
	asOf     time.Time
}

func (f *fakeSource) TrialBalance(_ context.Context, _ int64, asOf time.Time) ([]accounting.AccountBalance, error) {
	f.asOf = asOf
	return f.balances, nil
}

func (f *fakeSource) PeriodActivity(_ context.Context, _ int64, _, to time.Time) ([]accounting.AccountBalance, error) {
	f.asOf = to
	return f.balances, nil
}

func TestHandlerTrialBalance(t *testing.T) {
	source := &fakeSource{balances: []accounting.AccountBalance{
		{Code: "1000", Type: accounting.AccountTypeAsset, Debit: d("5")},
		{Code: "4000", Type: accounting.AccountTypeRevenue, Credit: d("5")},
	}}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), source)
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/reports/trial-balance?as_of=2025-03-31", nil)
	req = req.WithContext(shared.ContextWithTenant(req.Context(), 1))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), source.asOf)
	var body TrialBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.TotalDebit.Equal(d("5")))

	missingTenant := httptest.NewRequest(http.MethodGet, "/reports/bs", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, missingTenant)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
