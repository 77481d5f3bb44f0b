package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingRecorder observes posting outcomes.
type PostingRecorder interface {
	ObservePosting(outcome string)
}

// Service coordinates the chart of accounts, journal lifecycle and periods.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	locker  shared.Locker
	metrics PostingRecorder
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, locker shared.Locker) *Service {
	return &Service{repo: repo, audit: audit, locker: locker, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a posting outcome recorder.
func (s *Service) WithMetrics(metrics PostingRecorder) {
	s.metrics = metrics
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	log.At = s.now()
	_ = s.audit.Record(ctx, log)
}

// CreateAccount adds a node to the chart of accounts. Codes are dot separated
// and a child code extends its parent's code by one segment.
func (s *Service) CreateAccount(ctx context.Context, tenantID int64, input CreateAccountInput) (Account, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" || strings.TrimSpace(input.Name) == "" {
		return Account{}, fmt.Errorf("%w: code and name required", ErrInvalidAccount)
	}
	for _, segment := range strings.Split(code, ".") {
		if segment == "" {
			return Account{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidAccount, code)
		}
	}
	if !input.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, input.Type)
	}
	parent := strings.TrimSpace(input.ParentCode)
	implied := ParentOf(code)
	if parent == "" {
		parent = implied
	}
	if parent != implied {
		return Account{}, fmt.Errorf("%w: %s is not a direct child of %s", ErrInvalidAccount, code, parent)
	}
	now := s.now()
	acc := Account{
		TenantID:   tenantID,
		Code:       code,
		Name:       strings.TrimSpace(input.Name),
		Type:       input.Type,
		ParentCode: parent,
		Level:      LevelOf(code),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if parent != "" {
			p, err := tx.GetAccount(ctx, tenantID, parent)
			if errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("%w: %s", ErrParentNotFound, parent)
			}
			if err != nil {
				return err
			}
			if p.Type != acc.Type {
				return fmt.Errorf("%w: parent %s is %s", ErrInvalidAccount, p.Code, p.Type)
			}
		}
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, shared.AuditLog{TenantID: tenantID, Action: "account.create", Entity: "account", EntityID: code})
	return acc, nil
}

// DeactivateAccount blocks further postings to the account.
func (s *Service) DeactivateAccount(ctx context.Context, tenantID int64, code string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAccountActive(ctx, tenantID, code, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{TenantID: tenantID, Action: "account.deactivate", Entity: "account", EntityID: code})
	return nil
}

// ListAccounts retrieves the tenant's chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, tenantID)
		return err
	})
	return accounts, err
}

func newDraft(tenantID int64, input DraftInput, now time.Time) (JournalEntry, error) {
	if input.PeriodID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: period required", ErrInvalidPeriod)
	}
	entryType := input.Type
	if entryType == "" {
		entryType = EntryTypeStandard
	}
	if !entryType.Valid() {
		return JournalEntry{}, fmt.Errorf("%w: unknown entry type %q", ErrInvalidLine, entryType)
	}
	return JournalEntry{
		ID:           uuid.New(),
		TenantID:     tenantID,
		PeriodID:     input.PeriodID,
		Date:         dateOnly(input.Date),
		Description:  input.Description,
		Type:         entryType,
		Status:       EntryStatusDraft,
		SourceModule: input.SourceModule,
		SourceID:     input.SourceID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        cloneLines(input.Lines),
	}, nil
}

// CreateDraft stores a new draft entry. Drafts are validated when posted.
func (s *Service) CreateDraft(ctx context.Context, tenantID int64, input DraftInput) (JournalEntry, error) {
	entry, err := newDraft(tenantID, input, s.now())
	if err != nil {
		return JournalEntry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPeriod(ctx, tenantID, entry.PeriodID); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// UpdateDraft replaces the header and lines of a draft entry.
func (s *Service) UpdateDraft(ctx context.Context, tenantID int64, id uuid.UUID, input DraftInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return &InvalidStateError{From: current.Status, Action: "edit"}
		}
		next, err := newDraft(tenantID, input, s.now())
		if err != nil {
			return err
		}
		if _, err := tx.GetPeriod(ctx, tenantID, next.PeriodID); err != nil {
			return err
		}
		next.ID = current.ID
		next.SourceModule = current.SourceModule
		next.SourceID = current.SourceID
		next.CreatedAt = current.CreatedAt
		if err := tx.ReplaceDraft(ctx, next); err != nil {
			return err
		}
		entry = next
		return nil
	})
	return entry, err
}

// PostEntry moves a draft to posted. Period status check, entry number
// assignment and the status flip happen in one transaction holding the
// period row, so a concurrent close cannot slip in between.
func (s *Service) PostEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	var posted JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		posted, err = s.postInTx(ctx, tx, entry)
		return err
	})
	return s.finishPosting(ctx, posted, err)
}

// PostNew creates and posts an entry in one unit of work.
func (s *Service) PostNew(ctx context.Context, tenantID int64, input DraftInput) (JournalEntry, error) {
	entry, err := newDraft(tenantID, input, s.now())
	if err != nil {
		return JournalEntry{}, err
	}
	var posted JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		posted, err = s.postInTx(ctx, tx, entry)
		return err
	})
	return s.finishPosting(ctx, posted, err)
}

func (s *Service) finishPosting(ctx context.Context, entry JournalEntry, err error) (JournalEntry, error) {
	if err != nil {
		s.observe(postingOutcome(err))
		return JournalEntry{}, err
	}
	s.observe("posted")
	s.record(ctx, shared.AuditLog{
		TenantID: entry.TenantID,
		Action:   "journal.post",
		Entity:   "journal_entry",
		EntityID: entry.ID.String(),
		Meta: map[string]any{
			"number":        entry.Number,
			"source_module": entry.SourceModule,
			"source_id":     entry.SourceID.String(),
		},
	})
	return entry, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(outcome)
	}
}

func postingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines):
		return "unbalanced"
	case errors.Is(err, ErrPeriodLocked):
		return "period_locked"
	case errors.Is(err, ErrSourceAlreadyLinked):
		return "duplicate"
	default:
		return "error"
	}
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, entry JournalEntry) (JournalEntry, error) {
	if entry.Status != EntryStatusDraft {
		return JournalEntry{}, &InvalidStateError{From: entry.Status, Action: "post"}
	}
	if err := ValidateEntry(entry); err != nil {
		return JournalEntry{}, err
	}
	period, err := tx.GetPeriodForUpdate(ctx, entry.TenantID, entry.PeriodID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !shared.PeriodAcceptsPostings(string(period.Status)) {
		return JournalEntry{}, &PeriodLockedError{PeriodID: period.ID, Status: period.Status}
	}
	if !period.Contains(entry.Date) {
		return JournalEntry{}, fmt.Errorf("%w: %s not in %s", ErrDateOutOfRange, entry.Date.Format(time.DateOnly), period.Code)
	}
	seen := make(map[string]bool, len(entry.Lines))
	for _, line := range entry.Lines {
		if seen[line.AccountCode] {
			continue
		}
		seen[line.AccountCode] = true
		acc, err := tx.GetAccount(ctx, entry.TenantID, line.AccountCode)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return JournalEntry{}, fmt.Errorf("%w: %s", ErrAccountNotFound, line.AccountCode)
			}
			return JournalEntry{}, err
		}
		if !acc.IsActive {
			return JournalEntry{}, fmt.Errorf("%w: %s", ErrAccountInactive, acc.Code)
		}
	}
	if entry.HasSource() {
		if err := tx.LinkSource(ctx, entry.TenantID, entry.SourceModule, entry.SourceID, entry.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return JournalEntry{}, ErrSourceAlreadyLinked
			}
			return JournalEntry{}, err
		}
	}
	number, err := tx.NextEntryNumber(ctx, entry.TenantID)
	if err != nil {
		return JournalEntry{}, err
	}
	now := s.now()
	if err := tx.MarkPosted(ctx, entry.TenantID, entry.ID, number, now); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = EntryStatusPosted
	entry.Number = number
	entry.PostedAt = &now
	entry.UpdatedAt = now
	return entry, nil
}

// ApproveEntry moves a posted entry to approved.
func (s *Service) ApproveEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusPosted {
			return &InvalidStateError{From: current.Status, Action: "approve"}
		}
		now := s.now()
		if err := tx.UpdateEntryStatus(ctx, tenantID, id, EntryStatusPosted, EntryStatusApproved, now); err != nil {
			return err
		}
		current.Status = EntryStatusApproved
		current.ApprovedAt = &now
		current.UpdatedAt = now
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, shared.AuditLog{TenantID: tenantID, Action: "journal.approve", Entity: "journal_entry", EntityID: id.String()})
	return entry, nil
}

// ReverseEntry builds a draft reversal of entry with every line's debit and
// credit swapped. The original is not modified.
func ReverseEntry(entry JournalEntry, periodID int64, date time.Time, memo string) JournalEntry {
	lines := make([]JournalLine, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, JournalLine{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		})
	}
	if memo == "" {
		memo = fmt.Sprintf("Reversal of JE %d", entry.Number)
	}
	original := entry.ID
	return JournalEntry{
		ID:          uuid.New(),
		TenantID:    entry.TenantID,
		PeriodID:    periodID,
		Date:        dateOnly(date),
		Description: memo,
		Type:        EntryTypeReversal,
		Status:      EntryStatusDraft,
		ReversalOf:  &original,
		Lines:       lines,
	}
}

// Reverse posts a reversal of a posted or approved entry and marks the
// original reversed. When the original period no longer accepts postings the
// reversal goes to input.PeriodID.
func (s *Service) Reverse(ctx context.Context, tenantID int64, input ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, tenantID, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted && original.Status != EntryStatusApproved {
			return &InvalidStateError{From: original.Status, Action: "reverse"}
		}
		period, err := tx.GetPeriod(ctx, tenantID, original.PeriodID)
		if err != nil {
			return err
		}
		target := period
		date := original.Date
		if !shared.PeriodAcceptsPostings(string(period.Status)) {
			if input.PeriodID == 0 || input.PeriodID == period.ID {
				return &PeriodLockedError{PeriodID: period.ID, Status: period.Status}
			}
			target, err = tx.GetPeriod(ctx, tenantID, input.PeriodID)
			if err != nil {
				return err
			}
			date = target.StartDate
		}
		if input.Date != nil {
			date = *input.Date
		}
		draft := ReverseEntry(original, target.ID, date, input.Memo)
		draft.CreatedAt = s.now()
		draft.UpdatedAt = draft.CreatedAt
		if err := tx.InsertEntry(ctx, draft); err != nil {
			return err
		}
		reversal, err = s.postInTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		return tx.UpdateEntryStatus(ctx, tenantID, original.ID, original.Status, EntryStatusReversed, s.now())
	})
	if err != nil {
		s.observe(postingOutcome(err))
		return JournalEntry{}, err
	}
	s.observe("posted")
	s.record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Action:   "journal.reverse",
		Entity:   "journal_entry",
		EntityID: input.EntryID.String(),
		Meta: map[string]any{
			"reversal_id":     reversal.ID.String(),
			"reversal_number": reversal.Number,
		},
	})
	return reversal, nil
}

// GetEntry loads a journal entry with its lines.
func (s *Service) GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, tenantID, id)
		return err
	})
	return entry, err
}

// ListEntries retrieves journal entries matching filter.
func (s *Service) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, tenantID, filter)
		return err
	})
	return entries, err
}

// ComputeAccountBalance returns the signed balance of code and its
// descendants from all non-draft entries dated on or before asOf.
func (s *Service) ComputeAccountBalance(ctx context.Context, tenantID int64, code string, asOf time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetAccount(ctx, tenantID, code)
		if err != nil {
			return err
		}
		totals, err := tx.SumLines(ctx, tenantID, time.Time{}, dateOnly(asOf))
		if err != nil {
			return err
		}
		sum := rollup(acc.Code, totals)
		balance = SignedAmount(acc.Type, sum.Debit, sum.Credit)
		return nil
	})
	return balance, err
}

// PeriodActivity reports, per account, the balance before from and the
// debits and credits dated within [from, to].
func (s *Service) PeriodActivity(ctx context.Context, tenantID int64, from, to time.Time) ([]AccountBalance, error) {
	from, to = dateOnly(from), dateOnly(to)
	var balances []AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.ListAccounts(ctx, tenantID)
		if err != nil {
			return err
		}
		opening, err := tx.SumLines(ctx, tenantID, time.Time{}, from.AddDate(0, 0, -1))
		if err != nil {
			return err
		}
		period, err := tx.SumLines(ctx, tenantID, from, to)
		if err != nil {
			return err
		}
		balances = buildBalances(accounts, opening, period)
		return nil
	})
	return balances, err
}

// TrialBalance reports cumulative debits and credits per account up to asOf.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, asOf time.Time) ([]AccountBalance, error) {
	var balances []AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.ListAccounts(ctx, tenantID)
		if err != nil {
			return err
		}
		totals, err := tx.SumLines(ctx, tenantID, time.Time{}, dateOnly(asOf))
		if err != nil {
			return err
		}
		balances = buildBalances(accounts, nil, totals)
		return nil
	})
	return balances, err
}
