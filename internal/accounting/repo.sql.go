package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fincore/internal/platform/db"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertAccount(ctx context.Context, acc Account) error
	GetAccount(ctx context.Context, tenantID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]Account, error)
	SetAccountActive(ctx context.Context, tenantID int64, code string, active bool) error

	InsertPeriod(ctx context.Context, p Period) (Period, error)
	GetPeriod(ctx context.Context, tenantID, periodID int64) (Period, error)
	GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (Period, error)
	ListPeriods(ctx context.Context, tenantID int64) ([]Period, error)
	UpdatePeriodStatus(ctx context.Context, tenantID, periodID int64, status PeriodStatus) error

	InsertEntry(ctx context.Context, entry JournalEntry) error
	ReplaceDraft(ctx context.Context, entry JournalEntry) error
	GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error)
	ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error)
	NextEntryNumber(ctx context.Context, tenantID int64) (int64, error)
	MarkPosted(ctx context.Context, tenantID int64, id uuid.UUID, number int64, at time.Time) error
	UpdateEntryStatus(ctx context.Context, tenantID int64, id uuid.UUID, from, to EntryStatus, at time.Time) error
	CloseApprovedEntries(ctx context.Context, tenantID, periodID int64, at time.Time) (int64, error)
	LinkSource(ctx context.Context, tenantID int64, module string, ref, entryID uuid.UUID) error
	// SumLines totals debit and credit per account for balance-affecting entries
	// dated within [from, to]. A zero from means no lower bound.
	SumLines(ctx context.Context, tenantID int64, from, to time.Time) (map[string]LineTotals, error)
}

// Repository persists accounting entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a read-committed transaction. Period rows are
// locked explicitly, so posting and period transitions serialise on them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertAccount(ctx context.Context, acc Account) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (tenant_id, code, name, type, parent_code, level, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, acc.TenantID, acc.Code, acc.Name, string(acc.Type), nullString(acc.ParentCode), acc.Level, acc.IsActive)
	if db.IsUniqueViolation(err, "") {
		return ErrAccountExists
	}
	return err
}

const accountColumns = `tenant_id, code, name, type, COALESCE(parent_code, ''), level, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentCode, &a.Level, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) GetAccount(ctx context.Context, tenantID int64, code string) (Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return acc, err
}

func (r *txRepository) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *txRepository) SetAccountActive(ctx context.Context, tenantID int64, code string, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE tenant_id=$1 AND code=$2`, tenantID, code, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const periodColumns = `id, tenant_id, code, start_date, end_date, status, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepository) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO periods (tenant_id, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING `+periodColumns, p.TenantID, p.Code, p.StartDate, p.EndDate, string(p.Status))
	inserted, err := scanPeriod(row)
	if db.IsUniqueViolation(err, "uq_periods_code") {
		return Period{}, fmt.Errorf("%w: code %s exists", ErrInvalidPeriod, p.Code)
	}
	return inserted, err
}

func (r *txRepository) GetPeriod(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 AND id=$2`, tenantID, periodID))
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, periodID))
}

func (r *txRepository) ListPeriods(ctx context.Context, tenantID int64) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE tenant_id=$1 ORDER BY start_date`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, tenantID, periodID int64, status PeriodStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE periods SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, periodID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, tenant_id, period_id, entry_date, description, entry_type, status, source_module, source_id, reversal_of, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`, entry.ID, entry.TenantID, entry.PeriodID, entry.Date, entry.Description,
		string(entry.Type), string(entry.Status), entry.SourceModule, nullUUID(entry.SourceID), entry.ReversalOf, entry.CreatedAt)
	if err != nil {
		return err
	}
	return r.insertLines(ctx, entry)
}

func (r *txRepository) insertLines(ctx context.Context, entry JournalEntry) error {
	batch := &pgx.Batch{}
	for idx, line := range entry.Lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, tenant_id, account_code, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entry.ID, idx+1, entry.TenantID, line.AccountCode, line.Debit, line.Credit, line.Memo)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) ReplaceDraft(ctx context.Context, entry JournalEntry) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET period_id=$3, entry_date=$4, description=$5, entry_type=$6, updated_at=$7
WHERE tenant_id=$1 AND id=$2 AND status='DRAFT'`, entry.TenantID, entry.ID, entry.PeriodID, entry.Date, entry.Description, string(entry.Type), entry.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entry.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, entry)
}

const entryColumns = `id, tenant_id, COALESCE(number, 0), period_id, entry_date, description, entry_type, status,
source_module, COALESCE(source_id, '00000000-0000-0000-0000-000000000000'::uuid), reversal_of, posted_at, approved_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.PeriodID, &e.Date, &e.Description, &e.Type, &e.Status,
		&e.SourceModule, &e.SourceID, &e.ReversalOf, &e.PostedAt, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrJournalNotFound
	}
	return e, err
}

func (r *txRepository) loadLines(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	index := make(map[uuid.UUID]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}
	rows, err := r.tx.Query(ctx, `SELECT entry_id, account_code, debit, credit, memo FROM journal_lines
WHERE entry_id = ANY($1) ORDER BY entry_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var entryID uuid.UUID
		var line JournalLine
		if err := rows.Scan(&entryID, &line.AccountCode, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return err
		}
		i := index[entryID]
		entries[i].Lines = append(entries[i].Lines, line)
	}
	return rows.Err()
}

func (r *txRepository) getEntry(ctx context.Context, query string, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return JournalEntry{}, err
	}
	entries := []JournalEntry{entry}
	if err := r.loadLines(ctx, entries); err != nil {
		return JournalEntry{}, err
	}
	return entries[0], nil
}

func (r *txRepository) GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return r.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return r.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
}

func (r *txRepository) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND ($2::bigint = 0 OR period_id=$2) AND ($3::text = '' OR status=$3)
ORDER BY entry_date, number NULLS LAST, created_at`, tenantID, filter.PeriodID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *txRepository) NextEntryNumber(ctx context.Context, tenantID int64) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (tenant_id, last_number) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET last_number = entry_sequences.last_number + 1
RETURNING last_number`, tenantID).Scan(&next)
	return next, err
}

func (r *txRepository) MarkPosted(ctx context.Context, tenantID int64, id uuid.UUID, number int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', number=$3, posted_at=$4, updated_at=$4
WHERE tenant_id=$1 AND id=$2 AND status='DRAFT'`, tenantID, id, number, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, tenantID int64, id uuid.UUID, from, to EntryStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$4, updated_at=$5,
approved_at = CASE WHEN $4 = 'APPROVED' THEN $5 ELSE approved_at END
WHERE tenant_id=$1 AND id=$2 AND status=$3`, tenantID, id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) CloseApprovedEntries(ctx context.Context, tenantID, periodID int64, at time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='CLOSED', updated_at=$3
WHERE tenant_id=$1 AND period_id=$2 AND status='APPROVED'`, tenantID, periodID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) LinkSource(ctx context.Context, tenantID int64, module string, ref, entryID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (tenant_id, module, ref_id, entry_id) VALUES ($1,$2,$3,$4)`, tenantID, module, ref, entryID)
	if db.IsUniqueViolation(err, "uq_source_links") {
		return ErrSourceConflict
	}
	return err
}

func (r *txRepository) SumLines(ctx context.Context, tenantID int64, from, to time.Time) (map[string]LineTotals, error) {
	var lower any
	if !from.IsZero() {
		lower = from
	}
	rows, err := r.tx.Query(ctx, `SELECT jl.account_code, COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.entry_id
WHERE je.tenant_id=$1 AND je.status <> 'DRAFT'
  AND ($2::date IS NULL OR je.entry_date >= $2::date) AND je.entry_date <= $3::date
GROUP BY jl.account_code`, tenantID, lower, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]LineTotals)
	for rows.Next() {
		var code string
		var t LineTotals
		if err := rows.Scan(&code, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals[code] = t
	}
	return totals, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
