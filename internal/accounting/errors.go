package accounting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/shared"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrPeriodLocked indicates the period no longer accepts postings.
	ErrPeriodLocked = errors.New("accounting: period not open for posting")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDateOutOfRange indicates journal date mismatch.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrSourceConflict is returned by repositories when the source link exists.
	ErrSourceConflict = errors.New("accounting: source link conflict")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrPeriodOverlap indicates a new period intersects an existing one.
	ErrPeriodOverlap = errors.New("accounting: period overlaps existing period")
	// ErrInvalidPeriod indicates malformed period bounds or code.
	ErrInvalidPeriod = errors.New("accounting: invalid period")
	// ErrAccountNotFound indicates an unknown account code.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountExists indicates a duplicate account code.
	ErrAccountExists = errors.New("accounting: account already exists")
	// ErrParentNotFound indicates the parent account is missing.
	ErrParentNotFound = errors.New("accounting: parent account not found")
	// ErrInvalidAccount indicates inconsistent code, type or hierarchy.
	ErrInvalidAccount = errors.New("accounting: invalid account")
	// ErrAccountInactive indicates postings to a deactivated account.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrInvalidPeriodTransition indicates status change not allowed.
	ErrInvalidPeriodTransition = shared.ErrInvalidPeriodTransition
)

// ImbalanceError reports the totals of an entry whose sides differ.
type ImbalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("%s: debit %s, credit %s", ErrUnbalanced, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrUnbalanced.
func (e *ImbalanceError) Is(target error) bool { return target == ErrUnbalanced }

// PeriodLockedError reports a posting attempt into a closed or locked period.
type PeriodLockedError struct {
	PeriodID int64
	Status   PeriodStatus
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("%s: period %d is %s", ErrPeriodLocked, e.PeriodID, e.Status)
}

// Is matches ErrPeriodLocked.
func (e *PeriodLockedError) Is(target error) bool { return target == ErrPeriodLocked }

// InvalidStateError reports an illegal lifecycle transition.
type InvalidStateError struct {
	From   EntryStatus
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s entry in status %s", ErrInvalidStatus, e.Action, e.From)
}

// Is matches ErrInvalidStatus.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidStatus }
