package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance of t.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = shared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = shared.PeriodStatusClosed
	PeriodStatusLocked PeriodStatus = shared.PeriodStatusLocked
)

// EntryType classifies journal entries.
type EntryType string

const (
	EntryTypeOpening    EntryType = "opening"
	EntryTypeStandard   EntryType = "standard"
	EntryTypeAdjustment EntryType = "adjustment"
	EntryTypeClosing    EntryType = "closing"
	EntryTypeReversal   EntryType = "reversal"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeOpening, EntryTypeStandard, EntryTypeAdjustment, EntryTypeClosing, EntryTypeReversal:
		return true
	}
	return false
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusApproved EntryStatus = "APPROVED"
	EntryStatusReversed EntryStatus = "REVERSED"
	EntryStatusClosed   EntryStatus = "CLOSED"
)

// CountsInBalance reports whether entries in status s affect account balances.
func (s EntryStatus) CountsInBalance() bool {
	return s != EntryStatusDraft && s != ""
}

// Account models a chart of accounts node.
type Account struct {
	TenantID   int64
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
	Level      int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Period represents a fiscal period window.
type Period struct {
	ID        int64
	TenantID  int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether date falls inside the period, bounds inclusive.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Overlaps reports whether two periods share any day.
func (p Period) Overlaps(other Period) bool {
	return !p.EndDate.Before(other.StartDate) && !other.EndDate.Before(p.StartDate)
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           uuid.UUID
	TenantID     int64
	Number       int64
	PeriodID     int64
	Date         time.Time
	Description  string
	Type         EntryType
	Status       EntryStatus
	SourceModule string
	SourceID     uuid.UUID
	ReversalOf   *uuid.UUID
	PostedAt     *time.Time
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

// Totals sums the debit and credit sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// HasSource reports whether the entry is linked to an originating document.
func (e JournalEntry) HasSource() bool {
	return e.SourceModule != "" && e.SourceID != uuid.Nil
}

// BalanceTolerance is the largest debit/credit difference still treated as balanced.
var BalanceTolerance = decimal.New(1, -2)

// ValidateEntry verifies the entry has at least two lines and balances.
func ValidateEntry(entry JournalEntry) error {
	if len(entry.Lines) < 2 {
		return ErrTooFewLines
	}
	for idx, line := range entry.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", ErrInvalidLine, idx)
		}
	}
	debit, credit := entry.Totals()
	if debit.Sub(credit).Abs().GreaterThanOrEqual(BalanceTolerance) {
		return &ImbalanceError{Debit: debit, Credit: credit}
	}
	return nil
}

// CreateAccountInput describes a new chart of accounts node.
type CreateAccountInput struct {
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
}

// DraftInput groups fields required to create or edit a draft entry.
type DraftInput struct {
	PeriodID     int64
	Date         time.Time
	Description  string
	Type         EntryType
	SourceModule string
	SourceID     uuid.UUID
	Lines        []JournalLine
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID uuid.UUID
	// PeriodID receives the reversal when the original period no longer accepts postings.
	PeriodID int64
	Date     *time.Time
	Memo     string
}

// PeriodInput describes a new fiscal period.
type PeriodInput struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
}

// EntryFilter narrows journal listings.
type EntryFilter struct {
	PeriodID int64
	Status   EntryStatus
}
