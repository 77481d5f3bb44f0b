package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Leg is a movement seen from one warehouse: transfers are an out leg at the
// source and an in leg at the destination.
type Leg struct {
	MovementID uuid.UUID
	Type       MovementType
	Direction  Direction
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Timestamp  time.Time
}

// LegsFor projects movements onto a single warehouse, preserving order.
func LegsFor(movements []StockMovement, warehouseID int64) []Leg {
	legs := make([]Leg, 0, len(movements))
	for _, m := range movements {
		leg := Leg{MovementID: m.ID, Type: m.Type, Quantity: m.Quantity, UnitCost: m.UnitCost.Decimal, Timestamp: m.Timestamp}
		switch {
		case m.Type == MovementTransfer && m.WarehouseID == warehouseID:
			leg.Direction = DirectionOut
		case m.Type == MovementTransfer && m.DestinationWarehouseID == warehouseID:
			leg.Direction = DirectionIn
		case m.Type != MovementTransfer && m.WarehouseID == warehouseID:
			leg.Direction = m.Type.Direction()
		default:
			continue
		}
		legs = append(legs, leg)
	}
	return legs
}

// Lot is an unconsumed slice of an in movement.
type Lot struct {
	MovementID uuid.UUID
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
}

// LotConsumption records an out leg drawing on an in lot. A backorder filled
// by a later receipt references the receipt as the lot.
type LotConsumption struct {
	OutMovementID uuid.UUID
	LotMovementID uuid.UUID
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
}

// Valuation is the replayed cost position of one product in one warehouse.
// Issued figures cover stock leaving the business; stock moved to another
// warehouse is reported under Transferred.
type Valuation struct {
	ProductID           uuid.UUID
	WarehouseID         int64
	Method              CostingMethod
	Quantity            decimal.Decimal
	UnitCost            decimal.Decimal
	Value               decimal.Decimal
	IssuedQuantity      decimal.Decimal
	IssuedCost          decimal.Decimal
	TransferredQuantity decimal.Decimal
	TransferredCost     decimal.Decimal
	Lots                []Lot
	Consumptions        []LotConsumption
}

type pendingIssue struct {
	movementID uuid.UUID
	quantity   decimal.Decimal
	transfer   bool
}

// costLedger replays legs under one costing method.
type costLedger struct {
	method   CostingMethod
	standard decimal.Decimal

	lots     []Lot
	onHand   decimal.Decimal
	lastCost decimal.Decimal
	backlog  []pendingIssue

	// weighted average: Σ(qty×cost) / Σqty over every receipt
	receivedQty  decimal.Decimal
	receivedCost decimal.Decimal
	average      decimal.Decimal

	issuedQty       decimal.Decimal
	issuedCost      decimal.Decimal
	transferredQty  decimal.Decimal
	transferredCost decimal.Decimal
	consumptions    []LotConsumption
}

// ValuateCost replays legs in order and returns the resulting valuation.
// standardCost is only used by the STANDARD method.
func ValuateCost(method CostingMethod, standardCost decimal.Decimal, legs []Leg) Valuation {
	l := &costLedger{method: method, standard: standardCost}
	for _, leg := range legs {
		if leg.Direction == DirectionIn {
			l.receive(leg)
		} else {
			l.issue(leg)
		}
	}
	return l.valuation()
}

func (l *costLedger) receive(leg Leg) {
	qty, cost := leg.Quantity, leg.UnitCost
	l.lastCost = cost
	if l.method == CostingWeightedAverage && qty.IsPositive() {
		l.receivedQty = l.receivedQty.Add(qty)
		l.receivedCost = l.receivedCost.Add(qty.Mul(cost))
		l.average = l.receivedCost.Div(l.receivedQty)
	}
	// receipts first settle stock issued on backorder
	for len(l.backlog) > 0 && qty.IsPositive() {
		head := &l.backlog[0]
		fill := decimal.Min(head.quantity, qty)
		l.charge(head.movementID, leg.MovementID, fill, l.receiptCost(cost), head.transfer)
		head.quantity = head.quantity.Sub(fill)
		qty = qty.Sub(fill)
		if head.quantity.IsZero() {
			l.backlog = l.backlog[1:]
		}
	}
	if !qty.IsPositive() {
		return
	}
	switch l.method {
	case CostingWeightedAverage, CostingStandard:
		l.onHand = l.onHand.Add(qty)
	default:
		l.lots = append(l.lots, Lot{MovementID: leg.MovementID, Quantity: qty, UnitCost: cost})
		l.onHand = l.onHand.Add(qty)
	}
}

func (l *costLedger) receiptCost(actual decimal.Decimal) decimal.Decimal {
	switch l.method {
	case CostingStandard:
		return l.standard
	case CostingWeightedAverage:
		return l.average
	}
	return actual
}

func (l *costLedger) issue(leg Leg) {
	remaining := leg.Quantity
	transfer := leg.Type == MovementTransfer
	switch l.method {
	case CostingFIFO, CostingLIFO:
		for remaining.IsPositive() && len(l.lots) > 0 {
			idx := 0
			if l.method == CostingLIFO {
				idx = len(l.lots) - 1
			}
			lot := &l.lots[idx]
			take := decimal.Min(lot.Quantity, remaining)
			l.charge(leg.MovementID, lot.MovementID, take, lot.UnitCost, transfer)
			lot.Quantity = lot.Quantity.Sub(take)
			remaining = remaining.Sub(take)
			l.onHand = l.onHand.Sub(take)
			if lot.Quantity.IsZero() {
				l.lots = append(l.lots[:idx], l.lots[idx+1:]...)
			}
		}
	case CostingWeightedAverage, CostingStandard:
		take := decimal.Min(l.onHand, remaining)
		if take.IsPositive() {
			cost := l.average
			if l.method == CostingStandard {
				cost = l.standard
			}
			l.charge(leg.MovementID, uuid.Nil, take, cost, transfer)
			l.onHand = l.onHand.Sub(take)
			remaining = remaining.Sub(take)
		}
	}
	if remaining.IsPositive() {
		l.backlog = append(l.backlog, pendingIssue{movementID: leg.MovementID, quantity: remaining, transfer: transfer})
	}
}

func (l *costLedger) charge(outID, lotID uuid.UUID, qty, cost decimal.Decimal, transfer bool) {
	if transfer {
		l.transferredQty = l.transferredQty.Add(qty)
		l.transferredCost = l.transferredCost.Add(qty.Mul(cost))
	} else {
		l.issuedQty = l.issuedQty.Add(qty)
		l.issuedCost = l.issuedCost.Add(qty.Mul(cost))
	}
	l.consumptions = append(l.consumptions, LotConsumption{
		OutMovementID: outID,
		LotMovementID: lotID,
		Quantity:      qty,
		UnitCost:      cost,
	})
}

func (l *costLedger) backorderQty() decimal.Decimal {
	var total decimal.Decimal
	for _, p := range l.backlog {
		total = total.Add(p.quantity)
	}
	return total
}

// unitCost is the cost the next issue would be charged: the oldest lot for
// FIFO, the newest for LIFO.
func (l *costLedger) unitCost() decimal.Decimal {
	switch l.method {
	case CostingStandard:
		return l.standard
	case CostingWeightedAverage:
		if l.receivedQty.IsPositive() {
			return l.average
		}
		return l.lastCost
	case CostingLIFO:
		if n := len(l.lots); n > 0 {
			return l.lots[n-1].UnitCost
		}
	default:
		if len(l.lots) > 0 {
			return l.lots[0].UnitCost
		}
	}
	return l.lastCost
}

func (l *costLedger) valuation() Valuation {
	v := Valuation{
		Method:              l.method,
		Quantity:            l.onHand.Sub(l.backorderQty()),
		UnitCost:            l.unitCost(),
		IssuedQuantity:      l.issuedQty,
		IssuedCost:          l.issuedCost,
		TransferredQuantity: l.transferredQty,
		TransferredCost:     l.transferredCost,
		Consumptions:        l.consumptions,
	}
	switch l.method {
	case CostingWeightedAverage:
		v.Value = l.onHand.Mul(l.average)
	case CostingStandard:
		v.Value = l.onHand.Mul(l.standard)
	default:
		for _, lot := range l.lots {
			v.Value = v.Value.Add(lot.Quantity.Mul(lot.UnitCost))
		}
		v.Lots = append([]Lot(nil), l.lots...)
	}
	return v
}

// Variance is the difference between actual and standard cost of a receipt.
type Variance struct {
	MovementID   uuid.UUID
	Quantity     decimal.Decimal
	ActualCost   decimal.Decimal
	StandardCost decimal.Decimal
	UnitVariance decimal.Decimal
	Total        decimal.Decimal
}

// StandardVariance computes actual minus standard cost for every in leg.
func StandardVariance(standardCost decimal.Decimal, legs []Leg) []Variance {
	var out []Variance
	for _, leg := range legs {
		if leg.Direction != DirectionIn {
			continue
		}
		unit := leg.UnitCost.Sub(standardCost)
		out = append(out, Variance{
			MovementID:   leg.MovementID,
			Quantity:     leg.Quantity,
			ActualCost:   leg.UnitCost,
			StandardCost: standardCost,
			UnitVariance: unit,
			Total:        unit.Mul(leg.Quantity),
		})
	}
	return out
}

// QuantityOf replays only quantities: in legs minus out legs.
func QuantityOf(legs []Leg) decimal.Decimal {
	var qty decimal.Decimal
	for _, leg := range legs {
		if leg.Direction == DirectionIn {
			qty = qty.Add(leg.Quantity)
		} else {
			qty = qty.Sub(leg.Quantity)
		}
	}
	return qty
}
