package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/platform/db"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context, tenantID int64, prefix string) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	ReplaceDraft(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, error)
	UpdateStatus(ctx context.Context, tenantID int64, id uuid.UUID, from, to Status, at time.Time) error
	InsertPayment(ctx context.Context, tenantID int64, p Payment) error
	UpdateSettlement(ctx context.Context, tenantID int64, id uuid.UUID, paid decimal.Decimal, status Status, at time.Time) error
	MarkShipped(ctx context.Context, tenantID int64, id uuid.UUID, at time.Time) error
}

// Repository persists invoices in PostgreSQL.
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

// WithTx executes fn within a read-committed transaction; payments lock the
// invoice row before recomputing its settlement.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("invoicing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) NextNumber(ctx context.Context, tenantID int64, prefix string) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (tenant_id, prefix, last_number) VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, prefix) DO UPDATE SET last_number = invoice_sequences.last_number + 1
RETURNING last_number`, tenantID, prefix).Scan(&next)
	return next, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoices (id, tenant_id, number, side, invoice_type, status, party_id, warehouse_id,
issue_date, due_date, subtotal, tax_total, total, paid_amount, recurrence_months, template_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)`,
		inv.ID, inv.TenantID, inv.Number, string(inv.Side), string(inv.Type), string(inv.Status), inv.PartyID, inv.WarehouseID,
		inv.IssueDate, inv.DueDate, inv.Subtotal, inv.TaxTotal, inv.Total, inv.PaidAmount, inv.RecurrenceMonths, inv.TemplateID, inv.CreatedAt)
	if db.IsUniqueViolation(err, "uq_invoices_number") {
		return fmt.Errorf("%w: number %s exists", ErrInvalidInvoice, inv.Number)
	}
	if err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

func (r *txRepository) insertLines(ctx context.Context, inv Invoice) error {
	batch := &pgx.Batch{}
	for idx, l := range inv.Lines {
		batch.Queue(`INSERT INTO invoice_lines (invoice_id, line_no, product_id, description, quantity, unit_price, discount_pct, tax_rate_pct)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, inv.ID, idx+1, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.DiscountPct, l.TaxRatePct)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) ReplaceDraft(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET party_id=$3, warehouse_id=$4, issue_date=$5, due_date=$6, subtotal=$7,
tax_total=$8, total=$9, recurrence_months=$10, updated_at=$11
WHERE tenant_id=$1 AND id=$2 AND status='DRAFT'`, inv.TenantID, inv.ID, inv.PartyID, inv.WarehouseID, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.RecurrenceMonths, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id=$1`, inv.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

const invoiceColumns = `id, tenant_id, number, side, invoice_type, status, party_id, warehouse_id, issue_date, due_date,
subtotal, tax_total, total, paid_amount, recurrence_months, template_id, shipped_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.Side, &inv.Type, &inv.Status, &inv.PartyID, &inv.WarehouseID,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.PaidAmount, &inv.RecurrenceMonths,
		&inv.TemplateID, &inv.ShippedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *txRepository) GetInvoice(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	return r.loadOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	return r.loadOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
}

func (r *txRepository) loadOne(ctx context.Context, query string, tenantID int64, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Invoice{}, err
	}
	invoices := []Invoice{inv}
	if err := r.attach(ctx, invoices); err != nil {
		return Invoice{}, err
	}
	return invoices[0], nil
}

func (r *txRepository) ListInvoices(ctx context.Context, tenantID int64, filter ListFilter) ([]Invoice, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE tenant_id=$1
  AND ($2 = '' OR side=$2)
  AND ($3 = '' OR status=$3)
  AND ($4 = '' OR party_id=$4)
  AND ($5::uuid IS NULL OR template_id=$5)
ORDER BY issue_date, number`, tenantID, string(filter.Side), string(filter.Status), filter.PartyID,
		uuid.NullUUID{UUID: filter.TemplateID, Valid: filter.TemplateID != uuid.Nil})
	if err != nil {
		return nil, err
	}
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attach(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// attach loads lines and payments for invoices in two queries.
func (r *txRepository) attach(ctx context.Context, invoices []Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(invoices))
	index := make(map[uuid.UUID]int, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
		index[inv.ID] = i
	}
	rows, err := r.tx.Query(ctx, `SELECT invoice_id, product_id, description, quantity, unit_price, discount_pct, tax_rate_pct
FROM invoice_lines WHERE invoice_id = ANY($1) ORDER BY invoice_id, line_no`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			invoiceID uuid.UUID
			l         Line
		)
		if err := rows.Scan(&invoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.TaxRatePct); err != nil {
			rows.Close()
			return err
		}
		i := index[invoiceID]
		invoices[i].Lines = append(invoices[i].Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.tx.Query(ctx, `SELECT id, invoice_id, reference, amount, paid_at, created_at
FROM payments WHERE invoice_id = ANY($1) ORDER BY paid_at, created_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Reference, &p.Amount, &p.PaidAt, &p.CreatedAt); err != nil {
			return err
		}
		i := index[p.InvoiceID]
		invoices[i].Payments = append(invoices[i].Payments, p)
	}
	return rows.Err()
}

func (r *txRepository) UpdateStatus(ctx context.Context, tenantID int64, id uuid.UUID, from, to Status, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$4, updated_at=$5 WHERE tenant_id=$1 AND id=$2 AND status=$3`,
		tenantID, id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateError{From: from, Action: "move to " + string(to)}
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, tenantID int64, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (id, tenant_id, invoice_id, reference, amount, paid_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, p.ID, tenantID, p.InvoiceID, p.Reference, p.Amount, p.PaidAt, p.CreatedAt)
	if db.IsUniqueViolation(err, "uq_payments_reference") {
		return fmt.Errorf("%w: %s", ErrDuplicatePayment, p.Reference)
	}
	return err
}

func (r *txRepository) UpdateSettlement(ctx context.Context, tenantID int64, id uuid.UUID, paid decimal.Decimal, status Status, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$3, status=$4, updated_at=$5 WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, paid, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) MarkShipped(ctx context.Context, tenantID int64, id uuid.UUID, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET shipped_at=$3, updated_at=$3 WHERE tenant_id=$1 AND id=$2 AND shipped_at IS NULL`,
		tenantID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateError{From: StatusSent, Action: "ship already shipped"}
	}
	return nil
}
