package accounting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type accountKey struct {
	tenantID int64
	code     string
}

type sourceKey struct {
	tenantID int64
	module   string
	ref      uuid.UUID
}

type memoryState struct {
	accounts     map[accountKey]Account
	periods      map[int64]Period
	entries      map[uuid.UUID]JournalEntry
	sequences    map[int64]int64
	links        map[sourceKey]uuid.UUID
	nextPeriodID int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		accounts:     make(map[accountKey]Account, len(s.accounts)),
		periods:      make(map[int64]Period, len(s.periods)),
		entries:      make(map[uuid.UUID]JournalEntry, len(s.entries)),
		sequences:    make(map[int64]int64, len(s.sequences)),
		links:        make(map[sourceKey]uuid.UUID, len(s.links)),
		nextPeriodID: s.nextPeriodID,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.links {
		out.links[k] = v
	}
	return out
}

// MemoryRepository is an in-process RepositoryPort. Transactions run one at a
// time against a copy of the state that replaces it only on success.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: (&memoryState{}).clone()}
}

// WithTx runs fn against a staged copy and commits it when fn succeeds.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.state.clone()
	if err := fn(ctx, &memoryTx{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

type memoryTx struct {
	state *memoryState
}

func cloneLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, len(lines))
	copy(out, lines)
	return out
}

func (t *memoryTx) InsertAccount(_ context.Context, acc Account) error {
	key := accountKey{acc.TenantID, acc.Code}
	if _, ok := t.state.accounts[key]; ok {
		return ErrAccountExists
	}
	t.state.accounts[key] = acc
	return nil
}

func (t *memoryTx) GetAccount(_ context.Context, tenantID int64, code string) (Account, error) {
	acc, ok := t.state.accounts[accountKey{tenantID, code}]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (t *memoryTx) ListAccounts(_ context.Context, tenantID int64) ([]Account, error) {
	var out []Account
	for key, acc := range t.state.accounts {
		if key.tenantID == tenantID {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *memoryTx) SetAccountActive(_ context.Context, tenantID int64, code string, active bool) error {
	key := accountKey{tenantID, code}
	acc, ok := t.state.accounts[key]
	if !ok {
		return ErrAccountNotFound
	}
	acc.IsActive = active
	t.state.accounts[key] = acc
	return nil
}

func (t *memoryTx) InsertPeriod(_ context.Context, p Period) (Period, error) {
	t.state.nextPeriodID++
	p.ID = t.state.nextPeriodID
	t.state.periods[p.ID] = p
	return p, nil
}

func (t *memoryTx) GetPeriod(_ context.Context, tenantID, periodID int64) (Period, error) {
	p, ok := t.state.periods[periodID]
	if !ok || p.TenantID != tenantID {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (t *memoryTx) GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return t.GetPeriod(ctx, tenantID, periodID)
}

func (t *memoryTx) ListPeriods(_ context.Context, tenantID int64) ([]Period, error) {
	var out []Period
	for _, p := range t.state.periods {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (t *memoryTx) UpdatePeriodStatus(ctx context.Context, tenantID, periodID int64, status PeriodStatus) error {
	p, err := t.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return err
	}
	p.Status = status
	t.state.periods[periodID] = p
	return nil
}

func (t *memoryTx) InsertEntry(_ context.Context, entry JournalEntry) error {
	entry.Lines = cloneLines(entry.Lines)
	t.state.entries[entry.ID] = entry
	return nil
}

func (t *memoryTx) ReplaceDraft(_ context.Context, entry JournalEntry) error {
	current, ok := t.state.entries[entry.ID]
	if !ok || current.TenantID != entry.TenantID {
		return ErrJournalNotFound
	}
	if current.Status != EntryStatusDraft {
		return ErrInvalidStatus
	}
	current.PeriodID = entry.PeriodID
	current.Date = entry.Date
	current.Description = entry.Description
	current.Type = entry.Type
	current.Lines = cloneLines(entry.Lines)
	current.UpdatedAt = entry.UpdatedAt
	t.state.entries[entry.ID] = current
	return nil
}

func (t *memoryTx) GetEntry(_ context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	entry, ok := t.state.entries[id]
	if !ok || entry.TenantID != tenantID {
		return JournalEntry{}, ErrJournalNotFound
	}
	entry.Lines = cloneLines(entry.Lines)
	return entry, nil
}

func (t *memoryTx) GetEntryForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return t.GetEntry(ctx, tenantID, id)
}

func (t *memoryTx) ListEntries(_ context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range t.state.entries {
		if e.TenantID != tenantID {
			continue
		}
		if filter.PeriodID != 0 && e.PeriodID != filter.PeriodID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		e.Lines = cloneLines(e.Lines)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memoryTx) NextEntryNumber(_ context.Context, tenantID int64) (int64, error) {
	t.state.sequences[tenantID]++
	return t.state.sequences[tenantID], nil
}

func (t *memoryTx) MarkPosted(_ context.Context, tenantID int64, id uuid.UUID, number int64, at time.Time) error {
	entry, ok := t.state.entries[id]
	if !ok || entry.TenantID != tenantID {
		return ErrJournalNotFound
	}
	if entry.Status != EntryStatusDraft {
		return ErrInvalidStatus
	}
	entry.Status = EntryStatusPosted
	entry.Number = number
	entry.PostedAt = &at
	entry.UpdatedAt = at
	t.state.entries[id] = entry
	return nil
}

func (t *memoryTx) UpdateEntryStatus(_ context.Context, tenantID int64, id uuid.UUID, from, to EntryStatus, at time.Time) error {
	entry, ok := t.state.entries[id]
	if !ok || entry.TenantID != tenantID {
		return ErrJournalNotFound
	}
	if entry.Status != from {
		return ErrInvalidStatus
	}
	entry.Status = to
	entry.UpdatedAt = at
	if to == EntryStatusApproved {
		entry.ApprovedAt = &at
	}
	t.state.entries[id] = entry
	return nil
}

func (t *memoryTx) CloseApprovedEntries(_ context.Context, tenantID, periodID int64, at time.Time) (int64, error) {
	var n int64
	for id, e := range t.state.entries {
		if e.TenantID == tenantID && e.PeriodID == periodID && e.Status == EntryStatusApproved {
			e.Status = EntryStatusClosed
			e.UpdatedAt = at
			t.state.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) LinkSource(_ context.Context, tenantID int64, module string, ref, entryID uuid.UUID) error {
	key := sourceKey{tenantID, module, ref}
	if _, ok := t.state.links[key]; ok {
		return ErrSourceConflict
	}
	t.state.links[key] = entryID
	return nil
}

func (t *memoryTx) SumLines(_ context.Context, tenantID int64, from, to time.Time) (map[string]LineTotals, error) {
	totals := make(map[string]LineTotals)
	for _, e := range t.state.entries {
		if e.TenantID != tenantID || !e.Status.CountsInBalance() {
			continue
		}
		if (!from.IsZero() && e.Date.Before(from)) || e.Date.After(to) {
			continue
		}
		for _, line := range e.Lines {
			cur := totals[line.AccountCode]
			cur.Debit = cur.Debit.Add(line.Debit)
			cur.Credit = cur.Credit.Add(line.Credit)
			totals[line.AccountCode] = cur
		}
	}
	return totals, nil
}
