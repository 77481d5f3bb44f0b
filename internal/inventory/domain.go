package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostingMethod selects how issued stock is costed.
type CostingMethod string

const (
	CostingFIFO            CostingMethod = "FIFO"
	CostingLIFO            CostingMethod = "LIFO"
	CostingWeightedAverage CostingMethod = "WEIGHTED_AVERAGE"
	CostingStandard        CostingMethod = "STANDARD"
)

// Valid reports whether m is a supported costing method.
func (m CostingMethod) Valid() bool {
	switch m {
	case CostingFIFO, CostingLIFO, CostingWeightedAverage, CostingStandard:
		return true
	}
	return false
}

// MovementType enumerates stock movement kinds.
type MovementType string

const (
	MovementInPurchase    MovementType = "in_purchase"
	MovementInReturn      MovementType = "in_return"
	MovementInAdjustment  MovementType = "in_adjustment"
	MovementInProduction  MovementType = "in_production"
	MovementOutSale       MovementType = "out_sale"
	MovementOutReturn     MovementType = "out_return"
	MovementOutAdjustment MovementType = "out_adjustment"
	MovementOutProduction MovementType = "out_production"
	MovementTransfer      MovementType = "transfer"
)

// Direction describes how a movement changes the source warehouse quantity.
type Direction int

const (
	DirectionIn       Direction = 1
	DirectionOut      Direction = -1
	DirectionTransfer Direction = 0
)

// Direction classifies the movement type.
func (t MovementType) Direction() Direction {
	switch t {
	case MovementInPurchase, MovementInReturn, MovementInAdjustment, MovementInProduction:
		return DirectionIn
	case MovementOutSale, MovementOutReturn, MovementOutAdjustment, MovementOutProduction:
		return DirectionOut
	default:
		return DirectionTransfer
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	return t.Direction() != DirectionTransfer || t == MovementTransfer
}

// Product is a tenant catalog item referenced by movements and invoice lines.
type Product struct {
	ID             uuid.UUID
	TenantID       int64
	SKU            string
	Name           string
	CostingMethod  CostingMethod
	CostPrice      decimal.Decimal
	SalePrice      decimal.Decimal
	AllowBackorder bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StockMovement is an append-only record of a physical or cost change.
type StockMovement struct {
	ID                     uuid.UUID
	TenantID               int64
	IdempotencyKey         string
	ProductID              uuid.UUID
	WarehouseID            int64
	DestinationWarehouseID int64
	Type                   MovementType
	Quantity               decimal.Decimal
	UnitCost               decimal.NullDecimal
	Reference              string
	Timestamp              time.Time
	CreatedAt              time.Time
}

// LevelKey identifies one stock level row.
type LevelKey struct {
	TenantID    int64
	ProductID   uuid.UUID
	WarehouseID int64
}

// StockLevel is the materialised quantity per product and warehouse.
type StockLevel struct {
	TenantID       int64
	ProductID      uuid.UUID
	WarehouseID    int64
	QuantityOnHand decimal.Decimal
	Version        int64
	UpdatedAt      time.Time
}

// Key returns the level's identity.
func (l StockLevel) Key() LevelKey {
	return LevelKey{TenantID: l.TenantID, ProductID: l.ProductID, WarehouseID: l.WarehouseID}
}

// MovementInput is the request to apply one movement.
type MovementInput struct {
	IdempotencyKey         string
	ProductID              uuid.UUID
	WarehouseID            int64
	DestinationWarehouseID int64
	Type                   MovementType
	Quantity               decimal.Decimal
	UnitCost               decimal.NullDecimal
	Reference              string
	Timestamp              time.Time
}

// MovementFilter narrows movement listings. WarehouseID matches either leg of a transfer.
type MovementFilter struct {
	ProductID   uuid.UUID
	WarehouseID int64
	Until       time.Time
}

// LevelMismatch reports a materialised level that disagrees with movement replay.
type LevelMismatch struct {
	ProductID   uuid.UUID
	WarehouseID int64
	Stored      decimal.Decimal
	Replayed    decimal.Decimal
}
