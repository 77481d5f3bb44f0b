package accounting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/shared"
	_ "github.com/odyssey-erp/fincore/testing"
)

const tenant int64 = 42

var fixedNow = time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(n int) time.Time { return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	january Period
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, shared.NewLocalLocker())
	svc.WithNow(func() time.Time { return fixedNow })
	ctx := context.Background()
	for _, in := range []CreateAccountInput{
		{Code: "1000", Name: "Cash", Type: AccountTypeAsset},
		{Code: "1000.10", Name: "Bank", Type: AccountTypeAsset},
		{Code: "1100", Name: "Receivables", Type: AccountTypeAsset},
		{Code: "2000", Name: "Payables", Type: AccountTypeLiability},
		{Code: "3000", Name: "Equity", Type: AccountTypeEquity},
		{Code: "4000", Name: "Sales", Type: AccountTypeRevenue},
		{Code: "5000", Name: "Rent", Type: AccountTypeExpense},
	} {
		_, err := svc.CreateAccount(ctx, tenant, in)
		require.NoError(t, err)
	}
	january, err := svc.CreatePeriod(ctx, tenant, PeriodInput{Code: "2025-01", StartDate: day(1), EndDate: day(31)})
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, january: january}
}

func (f fixture) draft(t *testing.T, debitAcc, creditAcc, amount string) JournalEntry {
	t.Helper()
	entry, err := f.svc.CreateDraft(context.Background(), tenant, DraftInput{
		PeriodID: f.january.ID,
		Date:     day(15),
		Lines: []JournalLine{
			{AccountCode: debitAcc, Debit: d(amount)},
			{AccountCode: creditAcc, Credit: d(amount)},
		},
	})
	require.NoError(t, err)
	return entry
}

func TestValidateEntry(t *testing.T) {
	one := JournalEntry{Lines: []JournalLine{{AccountCode: "1000", Debit: d("10")}}}
	require.ErrorIs(t, ValidateEntry(one), ErrTooFewLines)

	unbalanced := JournalEntry{Lines: []JournalLine{
		{AccountCode: "1000", Debit: d("100")},
		{AccountCode: "4000", Credit: d("99.98")},
	}}
	err := ValidateEntry(unbalanced)
	require.ErrorIs(t, err, ErrUnbalanced)
	var imbalance *ImbalanceError
	require.True(t, errors.As(err, &imbalance))
	require.True(t, imbalance.Debit.Equal(d("100")))

	withinTolerance := JournalEntry{Lines: []JournalLine{
		{AccountCode: "1000", Debit: d("100.005")},
		{AccountCode: "4000", Credit: d("100")},
	}}
	require.NoError(t, ValidateEntry(withinTolerance))

	atTolerance := JournalEntry{Lines: []JournalLine{
		{AccountCode: "1000", Debit: d("100.01")},
		{AccountCode: "4000", Credit: d("100")},
	}}
	require.ErrorIs(t, ValidateEntry(atTolerance), ErrUnbalanced)
}

func TestSignedAmount(t *testing.T) {
	cases := []struct {
		typ  AccountType
		want string
	}{
		{AccountTypeAsset, "30"},
		{AccountTypeExpense, "30"},
		{AccountTypeLiability, "-30"},
		{AccountTypeEquity, "-30"},
		{AccountTypeRevenue, "-30"},
	}
	for _, tc := range cases {
		got := SignedAmount(tc.typ, d("50"), d("20"))
		require.True(t, got.Equal(d(tc.want)), "%s: got %s", tc.typ, got)
	}
}

func TestLevelOf(t *testing.T) {
	require.Equal(t, 0, LevelOf(""))
	require.Equal(t, 1, LevelOf("1000"))
	require.Equal(t, 3, LevelOf("1000.10.01"))
	require.Equal(t, "1000.10", ParentOf("1000.10.01"))
	require.Equal(t, "", ParentOf("1000"))
}

func TestCreateAccountHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, tenant, CreateAccountInput{Code: "1000.10.01", Name: "Bank USD", Type: AccountTypeAsset})
	require.NoError(t, err)
	require.Equal(t, 3, acc.Level)
	require.Equal(t, "1000.10", acc.ParentCode)

	_, err = f.svc.CreateAccount(ctx, tenant, CreateAccountInput{Code: "1200.01", Name: "Orphan", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ErrParentNotFound)

	_, err = f.svc.CreateAccount(ctx, tenant, CreateAccountInput{Code: "1000.20", Name: "Loan", Type: AccountTypeLiability})
	require.ErrorIs(t, err, ErrInvalidAccount)

	_, err = f.svc.CreateAccount(ctx, tenant, CreateAccountInput{Code: "1000.30", Name: "Petty", Type: AccountTypeAsset, ParentCode: "1100"})
	require.ErrorIs(t, err, ErrInvalidAccount)

	_, err = f.svc.CreateAccount(ctx, tenant, CreateAccountInput{Code: "1000", Name: "Dup", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestPostEntryAssignsIncreasingNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "1000", "4000", "100").ID)
	require.NoError(t, err)
	second, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "5000", "1000", "40").ID)
	require.NoError(t, err)

	require.Equal(t, EntryStatusPosted, first.Status)
	require.Equal(t, int64(1), first.Number)
	require.Equal(t, int64(2), second.Number)

	debit, credit := second.Totals()
	require.True(t, debit.Equal(credit))

	_, err = f.svc.PostEntry(ctx, tenant, first.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPostEntryRejectsClosedAndLockedPeriods(t *testing.T) {
	for _, target := range []PeriodStatus{PeriodStatusClosed, PeriodStatusLocked} {
		t.Run(string(target), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			entry := f.draft(t, "1000", "4000", "100")

			var err error
			if target == PeriodStatusClosed {
				_, err = f.svc.ClosePeriod(ctx, tenant, f.january.ID)
			} else {
				_, err = f.svc.LockPeriod(ctx, tenant, f.january.ID)
			}
			require.NoError(t, err)

			_, err = f.svc.PostEntry(ctx, tenant, entry.ID)
			require.ErrorIs(t, err, ErrPeriodLocked)
			var locked *PeriodLockedError
			require.True(t, errors.As(err, &locked))
			require.Equal(t, target, locked.Status)

			stored, err := f.svc.GetEntry(ctx, tenant, entry.ID)
			require.NoError(t, err)
			require.Equal(t, EntryStatusDraft, stored.Status)
			require.Zero(t, stored.Number)
		})
	}
}

func TestPostEntryRejectsInvalidWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.CreateDraft(ctx, tenant, DraftInput{
		PeriodID: f.january.ID,
		Date:     day(10),
		Lines: []JournalLine{
			{AccountCode: "1000", Debit: d("100")},
			{AccountCode: "4000", Credit: d("90")},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, tenant, entry.ID)
	require.ErrorIs(t, err, ErrUnbalanced)

	stored, err := f.svc.GetEntry(ctx, tenant, entry.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, stored.Status)

	balance, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000", day(31))
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	// the failed attempt must not consume an entry number
	posted, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "1000", "4000", "5").ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), posted.Number)
}

func TestPostEntryChecksDateAndAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outside, err := f.svc.CreateDraft(ctx, tenant, DraftInput{
		PeriodID: f.january.ID,
		Date:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Lines: []JournalLine{
			{AccountCode: "1000", Debit: d("1")},
			{AccountCode: "4000", Credit: d("1")},
		},
	})
	require.NoError(t, err)
	_, err = f.svc.PostEntry(ctx, tenant, outside.ID)
	require.ErrorIs(t, err, ErrDateOutOfRange)

	unknown := f.draft(t, "9999", "4000", "1")
	_, err = f.svc.PostEntry(ctx, tenant, unknown.ID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.NoError(t, f.svc.DeactivateAccount(ctx, tenant, "5000"))
	inactive := f.draft(t, "5000", "1000", "1")
	_, err = f.svc.PostEntry(ctx, tenant, inactive.ID)
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestUpdateDraftOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.draft(t, "1000", "4000", "100")

	updated, err := f.svc.UpdateDraft(ctx, tenant, entry.ID, DraftInput{
		PeriodID:    f.january.ID,
		Date:        day(16),
		Description: "corrected",
		Lines: []JournalLine{
			{AccountCode: "1000", Debit: d("120")},
			{AccountCode: "4000", Credit: d("120")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "corrected", updated.Description)

	posted, err := f.svc.PostEntry(ctx, tenant, entry.ID)
	require.NoError(t, err)
	debit, _ := posted.Totals()
	require.True(t, debit.Equal(d("120")))

	_, err = f.svc.UpdateDraft(ctx, tenant, entry.ID, DraftInput{PeriodID: f.january.ID, Date: day(16)})
	var invalid *InvalidStateError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, EntryStatusPosted, invalid.From)
}

func TestApproveOnlyFromPosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.draft(t, "1000", "4000", "100")

	_, err := f.svc.ApproveEntry(ctx, tenant, entry.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.PostEntry(ctx, tenant, entry.ID)
	require.NoError(t, err)
	approved, err := f.svc.ApproveEntry(ctx, tenant, entry.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	_, err = f.svc.ApproveEntry(ctx, tenant, entry.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReverseEntrySwapsLinesWithoutMutatingOriginal(t *testing.T) {
	original := JournalEntry{
		ID:     uuid.New(),
		Number: 7,
		Status: EntryStatusPosted,
		Lines: []JournalLine{
			{AccountCode: "1000", Debit: d("100")},
			{AccountCode: "4000", Credit: d("100")},
		},
	}
	reversal := ReverseEntry(original, 1, day(20), "")

	require.Equal(t, EntryTypeReversal, reversal.Type)
	require.Equal(t, original.ID, *reversal.ReversalOf)
	require.True(t, reversal.Lines[0].Credit.Equal(d("100")))
	require.True(t, reversal.Lines[0].Debit.IsZero())
	require.True(t, reversal.Lines[1].Debit.Equal(d("100")))
	require.Equal(t, "Reversal of JE 7", reversal.Description)

	require.True(t, original.Lines[0].Debit.Equal(d("100")))
	require.Equal(t, EntryStatusPosted, original.Status)
}

func TestReverseNetsBalanceToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "1000.10", "4000", "250").ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveEntry(ctx, tenant, posted.ID)
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(ctx, tenant, ReverseInput{EntryID: posted.ID})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, reversal.Status)
	require.Equal(t, int64(2), reversal.Number)

	original, err := f.svc.GetEntry(ctx, tenant, posted.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusReversed, original.Status)
	require.True(t, original.Lines[0].Debit.Equal(d("250")))

	for _, code := range []string{"1000", "4000"} {
		balance, err := f.svc.ComputeAccountBalance(ctx, tenant, code, day(31))
		require.NoError(t, err)
		require.True(t, balance.IsZero(), "%s: %s", code, balance)
	}

	_, err = f.svc.Reverse(ctx, tenant, ReverseInput{EntryID: posted.ID})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReverseIntoNextPeriodWhenOriginalClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "5000", "1000", "80").ID)
	require.NoError(t, err)
	_, err = f.svc.ClosePeriod(ctx, tenant, f.january.ID)
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, tenant, ReverseInput{EntryID: posted.ID})
	require.ErrorIs(t, err, ErrPeriodLocked)

	february, err := f.svc.CreatePeriod(ctx, tenant, PeriodInput{
		Code:      "2025-02",
		StartDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(ctx, tenant, ReverseInput{EntryID: posted.ID, PeriodID: february.ID})
	require.NoError(t, err)
	require.Equal(t, february.ID, reversal.PeriodID)
	require.Equal(t, february.StartDate, reversal.Date)

	january, err := f.svc.ComputeAccountBalance(ctx, tenant, "5000", day(31))
	require.NoError(t, err)
	require.True(t, january.Equal(d("80")))
	february28, err := f.svc.ComputeAccountBalance(ctx, tenant, "5000", february.EndDate)
	require.NoError(t, err)
	require.True(t, february28.IsZero())
}

func TestComputeAccountBalanceIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, e := range []struct{ dr, cr, amt string }{
		{"1000", "3000", "1000"},
		{"1000.10", "4000", "500"},
		{"5000", "1000.10", "120"},
	} {
		_, err := f.svc.PostEntry(ctx, tenant, f.draft(t, e.dr, e.cr, e.amt).ID)
		require.NoError(t, err)
	}

	cash, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000", day(31))
	require.NoError(t, err)
	require.True(t, cash.Equal(d("1380")), cash.String())

	bank, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000.10", day(31))
	require.NoError(t, err)
	require.True(t, bank.Equal(d("380")))

	revenue, err := f.svc.ComputeAccountBalance(ctx, tenant, "4000", day(31))
	require.NoError(t, err)
	require.True(t, revenue.Equal(d("500")))

	before, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000", day(14))
	require.NoError(t, err)
	require.True(t, before.IsZero())

	draftOnly := f.draft(t, "1000", "4000", "999")
	require.Equal(t, EntryStatusDraft, draftOnly.Status)
	unchanged, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000", day(31))
	require.NoError(t, err)
	require.True(t, unchanged.Equal(cash))
}

func TestPeriodActivityAndTrialBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PostNew(ctx, tenant, DraftInput{
		PeriodID: f.january.ID,
		Date:     day(2),
		Lines: []JournalLine{
			{AccountCode: "1000", Debit: d("300")},
			{AccountCode: "3000", Credit: d("300")},
		},
	})
	require.NoError(t, err)
	_, err = f.svc.PostEntry(ctx, tenant, f.draft(t, "1100", "4000", "200").ID)
	require.NoError(t, err)

	activity, err := f.svc.PeriodActivity(ctx, tenant, day(10), day(31))
	require.NoError(t, err)
	byCode := map[string]AccountBalance{}
	for _, b := range activity {
		byCode[b.Code] = b
	}
	require.True(t, byCode["1000"].Opening.Equal(d("300")))
	require.True(t, byCode["1000"].Debit.IsZero())
	require.True(t, byCode["4000"].Credit.Equal(d("200")))
	require.True(t, byCode["4000"].Balance().Equal(d("200")))

	tb, err := f.svc.TrialBalance(ctx, tenant, day(31))
	require.NoError(t, err)
	var debit, credit decimal.Decimal
	for _, b := range tb {
		debit = debit.Add(b.Debit)
		credit = credit.Add(b.Credit)
	}
	require.True(t, debit.Equal(credit))
	require.True(t, debit.Equal(d("500")))
}

func TestPostNewRejectsDuplicateSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := uuid.New()
	input := DraftInput{
		PeriodID:     f.january.ID,
		Date:         day(5),
		SourceModule: "invoicing",
		SourceID:     source,
		Lines: []JournalLine{
			{AccountCode: "1100", Debit: d("50")},
			{AccountCode: "4000", Credit: d("50")},
		},
	}
	_, err := f.svc.PostNew(ctx, tenant, input)
	require.NoError(t, err)
	_, err = f.svc.PostNew(ctx, tenant, input)
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)

	entries, err := f.svc.ListEntries(ctx, tenant, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestClosePeriodClosesApprovedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approved, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "1000", "4000", "10").ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveEntry(ctx, tenant, approved.ID)
	require.NoError(t, err)
	postedOnly, err := f.svc.PostEntry(ctx, tenant, f.draft(t, "1000", "4000", "20").ID)
	require.NoError(t, err)

	closed, err := f.svc.ClosePeriod(ctx, tenant, f.january.ID)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)

	got, err := f.svc.GetEntry(ctx, tenant, approved.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusClosed, got.Status)
	got, err = f.svc.GetEntry(ctx, tenant, postedOnly.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, got.Status)

	balance, err := f.svc.ComputeAccountBalance(ctx, tenant, "1000", day(31))
	require.NoError(t, err)
	require.True(t, balance.Equal(d("30")))
}

func TestPeriodTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReopenPeriod(ctx, tenant, f.january.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)

	_, err = f.svc.LockPeriod(ctx, tenant, f.january.ID)
	require.NoError(t, err)
	_, err = f.svc.UnlockPeriod(ctx, tenant, f.january.ID, false)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)
	p, err := f.svc.UnlockPeriod(ctx, tenant, f.january.ID, true)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, p.Status)
	p, err = f.svc.ReopenPeriod(ctx, tenant, f.january.ID)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, p.Status)

	_, err = f.svc.CreatePeriod(ctx, tenant, PeriodInput{Code: "overlap", StartDate: day(31), EndDate: day(31).AddDate(0, 1, 0)})
	require.ErrorIs(t, err, ErrPeriodOverlap)
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (shared.Unlock, error) {
	return nil, shared.ErrLockHeld
}

func TestPeriodTransitionRequiresFinanceLock(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, nil, heldLocker{})
	_, err := svc.ClosePeriod(context.Background(), tenant, f.january.ID)
	require.ErrorIs(t, err, shared.ErrLockHeld)

	periods, err := f.svc.ListPeriods(context.Background(), tenant)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, periods[0].Status)
}

type recordingAudit struct {
	actions []string
}

func (r *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

type countingMetrics map[string]int

func (c countingMetrics) ObservePosting(outcome string) { c[outcome]++ }

func TestPostingEmitsAuditAndMetrics(t *testing.T) {
	f := newFixture(t)
	audit := &recordingAudit{}
	metrics := countingMetrics{}
	svc := NewService(f.repo, audit, nil)
	svc.WithMetrics(metrics)
	ctx := context.Background()

	_, err := svc.PostEntry(ctx, tenant, f.draft(t, "1000", "4000", "10").ID)
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, tenant, uuid.New())
	require.ErrorIs(t, err, ErrJournalNotFound)

	require.Equal(t, []string{"journal.post"}, audit.actions)
	require.Equal(t, 1, metrics["posted"])
	require.Equal(t, 1, metrics["error"])
}
