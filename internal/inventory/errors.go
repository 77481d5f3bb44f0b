package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientStock indicates an out movement larger than stock on hand.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates negative cost.
	ErrInvalidUnitCost = errors.New("inventory: invalid unit cost")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: invalid movement type")
	// ErrInvalidWarehouse indicates a missing or self-referencing warehouse.
	ErrInvalidWarehouse = errors.New("inventory: invalid warehouse")
	// ErrInvalidCostingMethod indicates an unknown costing method.
	ErrInvalidCostingMethod = errors.New("inventory: invalid costing method")
	// ErrProductNotFound indicates missing product.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrDuplicateSKU indicates a SKU already used by another product.
	ErrDuplicateSKU = errors.New("inventory: sku already exists")
	// ErrMovementNotFound indicates no movement for the idempotency key.
	ErrMovementNotFound = errors.New("inventory: movement not found")
	// ErrDuplicateMovement indicates the idempotency key was already applied.
	ErrDuplicateMovement = errors.New("inventory: movement already applied")
	// ErrVersionConflict indicates a stock level changed since it was read.
	ErrVersionConflict = errors.New("inventory: stock level version conflict")
	// ErrConcurrentModification indicates retries were exhausted.
	ErrConcurrentModification = errors.New("inventory: concurrent modification")
)

// InsufficientStockError carries the quantities of a rejected out movement.
type InsufficientStockError struct {
	WarehouseID int64
	OnHand      decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: warehouse %d has %s, requested %s", ErrInsufficientStock, e.WarehouseID, e.OnHand, e.Requested)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConcurrentModificationError reports version conflicts that outlasted the retry budget.
type ConcurrentModificationError struct {
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts", ErrConcurrentModification, e.Attempts)
}

// Is matches ErrConcurrentModification.
func (e *ConcurrentModificationError) Is(target error) bool { return target == ErrConcurrentModification }
