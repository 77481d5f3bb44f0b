package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fincore/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	UpsertProduct(ctx context.Context, product Product) error
	GetProduct(ctx context.Context, tenantID int64, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, tenantID int64) ([]Product, error)
	// GetLevel returns the last committed level, or version 0 when no row exists.
	GetLevel(ctx context.Context, key LevelKey) (StockLevel, error)
	ListLevels(ctx context.Context, tenantID int64) ([]StockLevel, error)
	// UpdateLevel writes level only if the stored version still equals expectedVersion.
	UpdateLevel(ctx context.Context, level StockLevel, expectedVersion int64) error
	FindMovementByKey(ctx context.Context, tenantID int64, key string) (StockMovement, error)
	InsertMovement(ctx context.Context, movement StockMovement) error
	ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. Level
// writes are version-conditioned; those conflicts and deadlocks between racing
// first inserts both surface as ErrVersionConflict so the service retries.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return ErrVersionConflict
	}
	return err
}

func (r *txRepo) UpsertProduct(ctx context.Context, p Product) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO products (id, tenant_id, sku, name, costing_method, cost_price, sale_price, allow_backorder, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET sku=EXCLUDED.sku, name=EXCLUDED.name, costing_method=EXCLUDED.costing_method,
    cost_price=EXCLUDED.cost_price, sale_price=EXCLUDED.sale_price, allow_backorder=EXCLUDED.allow_backorder, updated_at=EXCLUDED.updated_at`,
		p.ID, p.TenantID, p.SKU, p.Name, string(p.CostingMethod), p.CostPrice, p.SalePrice, p.AllowBackorder, p.CreatedAt, p.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_products_sku") {
		return ErrDuplicateSKU
	}
	return err
}

const productColumns = `id, tenant_id, sku, name, costing_method, cost_price, sale_price, allow_backorder, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.CostingMethod, &p.CostPrice, &p.SalePrice, &p.AllowBackorder, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *txRepo) GetProduct(ctx context.Context, tenantID int64, id uuid.UUID) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *txRepo) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY sku`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *txRepo) GetLevel(ctx context.Context, key LevelKey) (StockLevel, error) {
	level := StockLevel{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}
	err := r.tx.QueryRow(ctx, `SELECT quantity_on_hand, version, updated_at FROM stock_levels
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3`, key.TenantID, key.ProductID, key.WarehouseID).
		Scan(&level.QuantityOnHand, &level.Version, &level.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return level, nil
	}
	return level, err
}

func (r *txRepo) ListLevels(ctx context.Context, tenantID int64) ([]StockLevel, error) {
	rows, err := r.tx.Query(ctx, `SELECT tenant_id, product_id, warehouse_id, quantity_on_hand, version, updated_at
FROM stock_levels WHERE tenant_id=$1 ORDER BY product_id, warehouse_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.TenantID, &l.ProductID, &l.WarehouseID, &l.QuantityOnHand, &l.Version, &l.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (r *txRepo) UpdateLevel(ctx context.Context, level StockLevel, expectedVersion int64) error {
	var sql string
	if expectedVersion == 0 {
		sql = `INSERT INTO stock_levels (tenant_id, product_id, warehouse_id, quantity_on_hand, version, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT DO NOTHING`
	} else {
		sql = `UPDATE stock_levels SET quantity_on_hand=$4, version=$5, updated_at=$6
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3 AND version=$7`
	}
	args := []any{level.TenantID, level.ProductID, level.WarehouseID, level.QuantityOnHand, level.Version, level.UpdatedAt}
	if expectedVersion != 0 {
		args = append(args, expectedVersion)
	}
	tag, err := r.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

const movementColumns = `id, tenant_id, idempotency_key, product_id, warehouse_id, COALESCE(destination_warehouse_id, 0),
movement_type, quantity, unit_cost, reference, occurred_at, created_at`

func scanMovement(row pgx.Row) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(&m.ID, &m.TenantID, &m.IdempotencyKey, &m.ProductID, &m.WarehouseID, &m.DestinationWarehouseID,
		&m.Type, &m.Quantity, &m.UnitCost, &m.Reference, &m.Timestamp, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockMovement{}, ErrMovementNotFound
	}
	return m, err
}

func (r *txRepo) FindMovementByKey(ctx context.Context, tenantID int64, key string) (StockMovement, error) {
	return scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE tenant_id=$1 AND idempotency_key=$2`, tenantID, key))
}

func (r *txRepo) InsertMovement(ctx context.Context, m StockMovement) error {
	var dest any
	if m.DestinationWarehouseID != 0 {
		dest = m.DestinationWarehouseID
	}
	tag, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, idempotency_key, product_id, warehouse_id, destination_warehouse_id,
    movement_type, quantity, unit_cost, reference, occurred_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		m.ID, m.TenantID, m.IdempotencyKey, m.ProductID, m.WarehouseID, dest, string(m.Type), m.Quantity, m.UnitCost, m.Reference, m.Timestamp, m.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateMovement
	}
	return nil
}

func (r *txRepo) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, error) {
	var product, until any
	if filter.ProductID != uuid.Nil {
		product = filter.ProductID
	}
	if !filter.Until.IsZero() {
		until = filter.Until
	}
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE tenant_id=$1
  AND ($2::uuid IS NULL OR product_id=$2)
  AND ($3::bigint = 0 OR warehouse_id=$3 OR destination_warehouse_id=$3)
  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
ORDER BY occurred_at, created_at, id`, tenantID, product, filter.WarehouseID, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
