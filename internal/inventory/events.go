package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementAppliedEvent is emitted once a movement commits, for ledger posting.
type MovementAppliedEvent struct {
	TenantID    int64
	MovementID  uuid.UUID
	ProductID   uuid.UUID
	WarehouseID int64
	Type        MovementType
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Reference   string
	OccurredAt  time.Time
}

// Value is quantity times unit cost.
func (e MovementAppliedEvent) Value() decimal.Decimal {
	return e.Quantity.Mul(e.UnitCost)
}

// MovementListener receives committed movements.
type MovementListener interface {
	MovementApplied(ctx context.Context, evt MovementAppliedEvent) error
}
