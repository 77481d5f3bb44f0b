package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	SKU            string          `json:"sku" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	CostingMethod  string          `json:"costing_method" validate:"omitempty,oneof=FIFO LIFO WEIGHTED_AVERAGE STANDARD"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	AllowBackorder bool            `json:"allow_backorder"`
}

type movementRequest struct {
	IdempotencyKey         string              `json:"idempotency_key" validate:"max=128"`
	ProductID              uuid.UUID           `json:"product_id" validate:"required"`
	WarehouseID            int64               `json:"warehouse_id" validate:"required,gt=0"`
	DestinationWarehouseID int64               `json:"destination_warehouse_id" validate:"omitempty,gt=0"`
	Type                   string              `json:"type" validate:"required"`
	Quantity               decimal.Decimal     `json:"quantity"`
	UnitCost               decimal.NullDecimal `json:"unit_cost"`
	Reference              string              `json:"reference" validate:"max=128"`
	Timestamp              *time.Time          `json:"timestamp"`
}

func (r movementRequest) toInput(key string) MovementInput {
	if key == "" {
		key = r.IdempotencyKey
	}
	input := MovementInput{
		IdempotencyKey:         key,
		ProductID:              r.ProductID,
		WarehouseID:            r.WarehouseID,
		DestinationWarehouseID: r.DestinationWarehouseID,
		Type:                   MovementType(r.Type),
		Quantity:               r.Quantity,
		UnitCost:               r.UnitCost,
		Reference:              r.Reference,
	}
	if r.Timestamp != nil {
		input.Timestamp = *r.Timestamp
	}
	return input
}

type planningRequest struct {
	LeadTimeDays decimal.Decimal `json:"lead_time_days"`
	SafetyStock  decimal.Decimal `json:"safety_stock"`
	OrderingCost decimal.Decimal `json:"ordering_cost"`
	HoldingCost  decimal.Decimal `json:"holding_cost"`
	WindowDays   int             `json:"window_days" validate:"omitempty,gt=0,lte=3650"`
}

type productResponse struct {
	ID             uuid.UUID       `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	CostingMethod  CostingMethod   `json:"costing_method"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	AllowBackorder bool            `json:"allow_backorder"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		CostingMethod:  p.CostingMethod,
		CostPrice:      p.CostPrice,
		SalePrice:      p.SalePrice,
		AllowBackorder: p.AllowBackorder,
	}
}

type levelResponse struct {
	ProductID      uuid.UUID       `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toLevelResponse(l StockLevel) levelResponse {
	return levelResponse{
		ProductID:      l.ProductID,
		WarehouseID:    l.WarehouseID,
		QuantityOnHand: l.QuantityOnHand,
		Version:        l.Version,
		UpdatedAt:      l.UpdatedAt,
	}
}

type movementResponse struct {
	ID                     uuid.UUID           `json:"id"`
	IdempotencyKey         string              `json:"idempotency_key"`
	ProductID              uuid.UUID           `json:"product_id"`
	WarehouseID            int64               `json:"warehouse_id"`
	DestinationWarehouseID int64               `json:"destination_warehouse_id,omitempty"`
	Type                   MovementType        `json:"type"`
	Quantity               decimal.Decimal     `json:"quantity"`
	UnitCost               decimal.NullDecimal `json:"unit_cost"`
	Reference              string              `json:"reference,omitempty"`
	Timestamp              time.Time           `json:"timestamp"`
}

func toMovementResponse(m StockMovement) movementResponse {
	return movementResponse{
		ID:                     m.ID,
		IdempotencyKey:         m.IdempotencyKey,
		ProductID:              m.ProductID,
		WarehouseID:            m.WarehouseID,
		DestinationWarehouseID: m.DestinationWarehouseID,
		Type:                   m.Type,
		Quantity:               m.Quantity,
		UnitCost:               m.UnitCost,
		Reference:              m.Reference,
		Timestamp:              m.Timestamp,
	}
}

type valuationResponse struct {
	ProductID      uuid.UUID       `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	Method         CostingMethod   `json:"method"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Value          decimal.Decimal `json:"value"`
	IssuedQuantity decimal.Decimal `json:"issued_quantity"`
	IssuedCost     decimal.Decimal `json:"issued_cost"`
}

func toValuationResponse(v Valuation) valuationResponse {
	return valuationResponse{
		ProductID:      v.ProductID,
		WarehouseID:    v.WarehouseID,
		Method:         v.Method,
		Quantity:       v.Quantity,
		UnitCost:       v.UnitCost,
		Value:          v.Value.Round(2),
		IssuedQuantity: v.IssuedQuantity,
		IssuedCost:     v.IssuedCost.Round(2),
	}
}

type varianceResponse struct {
	MovementID   uuid.UUID       `json:"movement_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ActualCost   decimal.Decimal `json:"actual_cost"`
	StandardCost decimal.Decimal `json:"standard_cost"`
	UnitVariance decimal.Decimal `json:"unit_variance"`
	Total        decimal.Decimal `json:"total"`
}

type mismatchResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Stored      decimal.Decimal `json:"stored"`
	Replayed    decimal.Decimal `json:"replayed"`
}
