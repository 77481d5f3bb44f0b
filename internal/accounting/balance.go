package accounting

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SignedAmount applies the balance sign rule: debits increase asset and
// expense accounts, credits increase liability, equity and revenue accounts.
// Every balance in the module is derived through this function.
func SignedAmount(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// LevelOf returns the hierarchy depth of an account code, one per dot segment.
func LevelOf(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, ".") + 1
}

// ParentOf derives the parent code implied by the dot hierarchy.
func ParentOf(code string) string {
	idx := strings.LastIndex(code, ".")
	if idx < 0 {
		return ""
	}
	return code[:idx]
}

// IsWithin reports whether code equals ancestor or sits below it.
func IsWithin(code, ancestor string) bool {
	return code == ancestor || strings.HasPrefix(code, ancestor+".")
}

// LineTotals holds the raw debit and credit sums for one account.
type LineTotals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// AccountBalance reports opening balance and period movement for an account.
type AccountBalance struct {
	Code    string
	Name    string
	Type    AccountType
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Movement is the signed effect of the period's debits and credits.
func (b AccountBalance) Movement() decimal.Decimal {
	return SignedAmount(b.Type, b.Debit, b.Credit)
}

// Balance is the closing balance.
func (b AccountBalance) Balance() decimal.Decimal {
	return b.Opening.Add(b.Movement())
}

// rollup sums totals for code and all of its descendants.
func rollup(code string, totals map[string]LineTotals) LineTotals {
	var out LineTotals
	for c, t := range totals {
		if IsWithin(c, code) {
			out.Debit = out.Debit.Add(t.Debit)
			out.Credit = out.Credit.Add(t.Credit)
		}
	}
	return out
}

// buildBalances combines opening and period totals per account, sorted by code.
func buildBalances(accounts []Account, opening, period map[string]LineTotals) []AccountBalance {
	out := make([]AccountBalance, 0, len(accounts))
	for _, acc := range accounts {
		open := opening[acc.Code]
		cur := period[acc.Code]
		out = append(out, AccountBalance{
			Code:    acc.Code,
			Name:    acc.Name,
			Type:    acc.Type,
			Opening: SignedAmount(acc.Type, open.Debit, open.Credit),
			Debit:   cur.Debit,
			Credit:  cur.Credit,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
