package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder observes applied movements and optimistic conflicts.
type MetricsRecorder interface {
	ObserveMovement(movementType string)
	ObserveConflict()
}

// DefaultMaxRetries bounds version-conflict retries when ServiceConfig leaves it unset.
const DefaultMaxRetries = 5

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowBackorder bool
	MaxRetries     int
}

// Service coordinates inventory operations.
type Service struct {
	repo           RepositoryPort
	audit          AuditPort
	metrics        MetricsRecorder
	listener       MovementListener
	logger         *slog.Logger
	allowBackorder bool
	maxRetries     int
	now            func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &Service{
		repo:           repo,
		audit:          audit,
		allowBackorder: cfg.AllowBackorder,
		maxRetries:     retries,
		logger:         slog.Default(),
		now:            time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a metrics recorder.
func (s *Service) WithMetrics(metrics MetricsRecorder) {
	s.metrics = metrics
}

// WithListener registers a receiver for committed movements.
func (s *Service) WithListener(listener MovementListener) {
	s.listener = listener
}

// WithLogger overrides the service logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ProductInput describes a product to create or update.
type ProductInput struct {
	ID             uuid.UUID
	SKU            string
	Name           string
	CostingMethod  CostingMethod
	CostPrice      decimal.Decimal
	SalePrice      decimal.Decimal
	AllowBackorder bool
}

// UpsertProduct creates a product, or updates it when input.ID exists.
func (s *Service) UpsertProduct(ctx context.Context, tenantID int64, input ProductInput) (Product, error) {
	if strings.TrimSpace(input.SKU) == "" {
		return Product{}, errors.New("inventory: sku required")
	}
	method := input.CostingMethod
	if method == "" {
		method = CostingWeightedAverage
	}
	if !method.Valid() {
		return Product{}, fmt.Errorf("%w: %q", ErrInvalidCostingMethod, method)
	}
	if input.CostPrice.IsNegative() || input.SalePrice.IsNegative() {
		return Product{}, ErrInvalidUnitCost
	}
	now := s.now()
	product := Product{
		ID:             input.ID,
		TenantID:       tenantID,
		SKU:            strings.TrimSpace(input.SKU),
		Name:           input.Name,
		CostingMethod:  method,
		CostPrice:      input.CostPrice,
		SalePrice:      input.SalePrice,
		AllowBackorder: input.AllowBackorder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if product.ID == uuid.Nil {
			product.ID = uuid.New()
		} else if existing, err := tx.GetProduct(ctx, tenantID, product.ID); err == nil {
			product.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, ErrProductNotFound) {
			return err
		}
		return tx.UpsertProduct(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// GetProduct loads one product.
func (s *Service) GetProduct(ctx context.Context, tenantID int64, id uuid.UUID) (Product, error) {
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.GetProduct(ctx, tenantID, id)
		return err
	})
	return product, err
}

// ListProducts returns the tenant catalog.
func (s *Service) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	var products []Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		products, err = tx.ListProducts(ctx, tenantID)
		return err
	})
	return products, err
}

func validateMovement(input MovementInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMovementType, input.Type)
	}
	if !input.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if input.UnitCost.Valid && input.UnitCost.Decimal.IsNegative() {
		return ErrInvalidUnitCost
	}
	if input.ProductID == uuid.Nil || input.WarehouseID == 0 {
		return fmt.Errorf("%w: product and warehouse required", ErrInvalidWarehouse)
	}
	if input.Type == MovementTransfer {
		if input.DestinationWarehouseID == 0 || input.DestinationWarehouseID == input.WarehouseID {
			return fmt.Errorf("%w: transfer needs a distinct destination", ErrInvalidWarehouse)
		}
	} else if input.DestinationWarehouseID != 0 {
		return fmt.Errorf("%w: destination only valid for transfers", ErrInvalidWarehouse)
	}
	return nil
}

// ApplyMovement records a movement and updates the affected stock levels.
// Level writes are conditioned on the version read; on conflict the whole
// application is retried up to the configured budget. Replaying an
// idempotency key returns the current level without applying again, and
// notifies the listener of the stored movement once more.
func (s *Service) ApplyMovement(ctx context.Context, tenantID int64, input MovementInput) (StockLevel, error) {
	if err := validateMovement(input); err != nil {
		return StockLevel{}, err
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = uuid.NewString()
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = s.now()
	}
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		level, movement, replayed, err := s.applyOnce(ctx, tenantID, input)
		switch {
		case err == nil:
			if !replayed {
				if s.metrics != nil {
					s.metrics.ObserveMovement(string(input.Type))
				}
				s.recordMovement(ctx, tenantID, input)
			}
			s.notify(ctx, movement)
			return level, nil
		case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrDuplicateMovement):
			if s.metrics != nil {
				s.metrics.ObserveConflict()
			}
			continue
		default:
			return StockLevel{}, err
		}
	}
	s.logger.Warn("stock movement retries exhausted",
		slog.Int64("tenant_id", tenantID),
		slog.String("product_id", input.ProductID.String()),
		slog.Int64("warehouse_id", input.WarehouseID),
		slog.Int("attempts", s.maxRetries))
	return StockLevel{}, &ConcurrentModificationError{Attempts: s.maxRetries}
}

type levelDelta struct {
	warehouseID int64
	delta       decimal.Decimal
}

func (s *Service) applyOnce(ctx context.Context, tenantID int64, input MovementInput) (StockLevel, StockMovement, bool, error) {
	var (
		result   StockLevel
		applied  StockMovement
		replayed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.FindMovementByKey(ctx, tenantID, input.IdempotencyKey); err == nil {
			var lerr error
			result, lerr = tx.GetLevel(ctx, LevelKey{TenantID: tenantID, ProductID: existing.ProductID, WarehouseID: existing.WarehouseID})
			applied, replayed = existing, true
			return lerr
		} else if !errors.Is(err, ErrMovementNotFound) {
			return err
		}
		product, err := tx.GetProduct(ctx, tenantID, input.ProductID)
		if err != nil {
			return err
		}
		movementID := uuid.New()
		unitCost := input.UnitCost
		if !unitCost.Valid {
			var cost decimal.Decimal
			if input.Type.Direction() == DirectionIn {
				cost, err = s.currentUnitCost(ctx, tx, product, input.WarehouseID)
			} else {
				cost, err = s.issueUnitCost(ctx, tx, product, movementID, input)
			}
			if err != nil {
				return err
			}
			unitCost = decimal.NewNullDecimal(cost)
		}

		var deltas []levelDelta
		switch input.Type.Direction() {
		case DirectionIn:
			deltas = []levelDelta{{input.WarehouseID, input.Quantity}}
		case DirectionOut:
			deltas = []levelDelta{{input.WarehouseID, input.Quantity.Neg()}}
		default:
			deltas = []levelDelta{
				{input.WarehouseID, input.Quantity.Neg()},
				{input.DestinationWarehouseID, input.Quantity},
			}
		}
		now := s.now()
		for i, d := range deltas {
			level, err := tx.GetLevel(ctx, LevelKey{TenantID: tenantID, ProductID: product.ID, WarehouseID: d.warehouseID})
			if err != nil {
				return err
			}
			next := level.QuantityOnHand.Add(d.delta)
			if d.delta.IsNegative() && next.IsNegative() && !s.allowBackorder && !product.AllowBackorder {
				return &InsufficientStockError{WarehouseID: d.warehouseID, OnHand: level.QuantityOnHand, Requested: d.delta.Neg()}
			}
			expected := level.Version
			level.QuantityOnHand = next
			level.Version++
			level.UpdatedAt = now
			if err := tx.UpdateLevel(ctx, level, expected); err != nil {
				return err
			}
			if i == 0 {
				result = level
			}
		}
		movement := StockMovement{
			ID:                     movementID,
			TenantID:               tenantID,
			IdempotencyKey:         input.IdempotencyKey,
			ProductID:              product.ID,
			WarehouseID:            input.WarehouseID,
			DestinationWarehouseID: input.DestinationWarehouseID,
			Type:                   input.Type,
			Quantity:               input.Quantity,
			UnitCost:               unitCost,
			Reference:              input.Reference,
			Timestamp:              input.Timestamp,
			CreatedAt:              now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		applied = movement
		return nil
	})
	if err != nil {
		return StockLevel{}, StockMovement{}, false, err
	}
	return result, applied, replayed, nil
}

// currentUnitCost values receipts that arrive without a cost: returns take
// the warehouse's running unit cost, falling back to the product cost price
// when there is no history.
func (s *Service) currentUnitCost(ctx context.Context, tx TxRepository, product Product, warehouseID int64) (decimal.Decimal, error) {
	movements, err := tx.ListMovements(ctx, product.TenantID, MovementFilter{ProductID: product.ID, WarehouseID: warehouseID})
	if err != nil {
		return decimal.Zero, err
	}
	if len(movements) == 0 {
		return product.CostPrice, nil
	}
	v := ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(movements, warehouseID))
	if v.UnitCost.IsZero() {
		return product.CostPrice, nil
	}
	return v.UnitCost, nil
}

// issueUnitCost is the average cost the costing method charges to an out
// movement or to the source leg of a transfer, replayed at its timestamp.
// A transfer's destination receives at this cost, so value drained from
// several lots arrives intact. Quantity issued on backorder is charged
// nothing until a receipt fills it.
func (s *Service) issueUnitCost(ctx context.Context, tx TxRepository, product Product, movementID uuid.UUID, input MovementInput) (decimal.Decimal, error) {
	movements, err := tx.ListMovements(ctx, product.TenantID, MovementFilter{ProductID: product.ID, WarehouseID: input.WarehouseID})
	if err != nil {
		return decimal.Zero, err
	}
	movements = append(movements, StockMovement{
		ID:                     movementID,
		ProductID:              product.ID,
		WarehouseID:            input.WarehouseID,
		DestinationWarehouseID: input.DestinationWarehouseID,
		Type:                   input.Type,
		Quantity:               input.Quantity,
		Timestamp:              input.Timestamp,
	})
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].Timestamp.Before(movements[j].Timestamp)
	})
	v := ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(movements, input.WarehouseID))
	var cost decimal.Decimal
	for _, c := range v.Consumptions {
		if c.OutMovementID == movementID {
			cost = cost.Add(c.Quantity.Mul(c.UnitCost))
		}
	}
	return cost.Div(input.Quantity).Round(4), nil
}

func (s *Service) notify(ctx context.Context, m StockMovement) {
	if s.listener == nil {
		return
	}
	evt := MovementAppliedEvent{
		TenantID:    m.TenantID,
		MovementID:  m.ID,
		ProductID:   m.ProductID,
		WarehouseID: m.WarehouseID,
		Type:        m.Type,
		Quantity:    m.Quantity,
		UnitCost:    m.UnitCost.Decimal,
		Reference:   m.Reference,
		OccurredAt:  m.Timestamp,
	}
	if err := s.listener.MovementApplied(ctx, evt); err != nil {
		s.logger.Error("movement listener failed", slog.String("movement_id", m.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) recordMovement(ctx context.Context, tenantID int64, input MovementInput) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Action:   "stock.movement",
		Entity:   "product",
		EntityID: input.ProductID.String(),
		Meta: map[string]any{
			"type":            string(input.Type),
			"warehouse_id":    input.WarehouseID,
			"quantity":        input.Quantity.String(),
			"idempotency_key": input.IdempotencyKey,
		},
		At: s.now(),
	})
}

// GetLevel returns the materialised level for a product in a warehouse.
func (s *Service) GetLevel(ctx context.Context, tenantID int64, productID uuid.UUID, warehouseID int64) (StockLevel, error) {
	var level StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		level, err = tx.GetLevel(ctx, LevelKey{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID})
		return err
	})
	return level, err
}

// ListLevels returns every materialised level for the tenant.
func (s *Service) ListLevels(ctx context.Context, tenantID int64) ([]StockLevel, error) {
	var levels []StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		levels, err = tx.ListLevels(ctx, tenantID)
		return err
	})
	return levels, err
}

// ListMovements returns stored movements matching filter in application order.
func (s *Service) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, error) {
	var movements []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movements, err = tx.ListMovements(ctx, tenantID, filter)
		return err
	})
	return movements, err
}

// Valuate replays movements up to asOf through the product's costing method.
func (s *Service) Valuate(ctx context.Context, tenantID int64, productID uuid.UUID, warehouseID int64, asOf time.Time) (Valuation, error) {
	var v Valuation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		movements, err := tx.ListMovements(ctx, tenantID, MovementFilter{ProductID: productID, WarehouseID: warehouseID, Until: asOf})
		if err != nil {
			return err
		}
		v = ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(movements, warehouseID))
		v.ProductID, v.WarehouseID = productID, warehouseID
		return nil
	})
	return v, err
}

type stockKey struct {
	productID   uuid.UUID
	warehouseID int64
}

// groupMovements buckets movements per product and warehouse leg.
func groupMovements(movements []StockMovement) (map[stockKey][]StockMovement, []stockKey) {
	groups := make(map[stockKey][]StockMovement)
	var keys []stockKey
	add := func(k stockKey, m StockMovement) {
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], m)
	}
	for _, m := range movements {
		add(stockKey{m.ProductID, m.WarehouseID}, m)
		if m.Type == MovementTransfer {
			add(stockKey{m.ProductID, m.DestinationWarehouseID}, m)
		}
	}
	return groups, keys
}

// ValuateAll values every product and warehouse with movements up to asOf.
func (s *Service) ValuateAll(ctx context.Context, tenantID int64, asOf time.Time) ([]Valuation, error) {
	var out []Valuation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.ListProducts(ctx, tenantID)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}
		movements, err := tx.ListMovements(ctx, tenantID, MovementFilter{Until: asOf})
		if err != nil {
			return err
		}
		groups, keys := groupMovements(movements)
		for _, k := range keys {
			product, ok := byID[k.productID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrProductNotFound, k.productID)
			}
			v := ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(groups[k], k.warehouseID))
			v.ProductID, v.WarehouseID = k.productID, k.warehouseID
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// Variances reports actual minus standard cost for each receipt of a product.
func (s *Service) Variances(ctx context.Context, tenantID int64, productID uuid.UUID, warehouseID int64) ([]Variance, error) {
	var out []Variance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		movements, err := tx.ListMovements(ctx, tenantID, MovementFilter{ProductID: productID, WarehouseID: warehouseID})
		if err != nil {
			return err
		}
		out = StandardVariance(product.CostPrice, LegsFor(movements, warehouseID))
		return nil
	})
	return out, err
}

// VerifyLevels compares every materialised level with the quantity obtained
// by replaying its movements and returns the disagreements.
func (s *Service) VerifyLevels(ctx context.Context, tenantID int64) ([]LevelMismatch, error) {
	var mismatches []LevelMismatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		levels, err := tx.ListLevels(ctx, tenantID)
		if err != nil {
			return err
		}
		movements, err := tx.ListMovements(ctx, tenantID, MovementFilter{})
		if err != nil {
			return err
		}
		groups, keys := groupMovements(movements)
		seen := make(map[stockKey]bool, len(levels))
		for _, level := range levels {
			k := stockKey{level.ProductID, level.WarehouseID}
			seen[k] = true
			replayed := QuantityOf(LegsFor(groups[k], k.warehouseID))
			if !replayed.Equal(level.QuantityOnHand) {
				mismatches = append(mismatches, LevelMismatch{ProductID: k.productID, WarehouseID: k.warehouseID, Stored: level.QuantityOnHand, Replayed: replayed})
			}
		}
		for _, k := range keys {
			if !seen[k] {
				mismatches = append(mismatches, LevelMismatch{ProductID: k.productID, WarehouseID: k.warehouseID, Replayed: QuantityOf(LegsFor(groups[k], k.warehouseID))})
			}
		}
		return nil
	})
	return mismatches, err
}

// PlanningMetrics derives usage-based replenishment figures for a product in
// a warehouse from the trailing input.WindowDays of consumption.
func (s *Service) PlanningMetrics(ctx context.Context, tenantID int64, productID uuid.UUID, warehouseID int64, input PlanningInput) (Planning, error) {
	window := input.WindowDays
	if window <= 0 {
		window = 30
	}
	end := s.now()
	start := end.AddDate(0, 0, -window)
	var plan Planning
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		movements, err := tx.ListMovements(ctx, tenantID, MovementFilter{ProductID: productID, WarehouseID: warehouseID, Until: end})
		if err != nil {
			return err
		}
		var consumed decimal.Decimal
		var before []StockMovement
		for _, m := range movements {
			if !m.Timestamp.After(start) {
				before = append(before, m)
				continue
			}
			if m.Type == MovementOutSale || m.Type == MovementOutProduction {
				consumed = consumed.Add(m.Quantity)
			}
		}
		opening := ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(before, warehouseID))
		closing := ValuateCost(product.CostingMethod, product.CostPrice, LegsFor(movements, warehouseID))

		plan.DailyUsage = consumed.Div(decimal.NewFromInt(int64(window)))
		plan.AnnualDemand = plan.DailyUsage.Mul(decimal.NewFromInt(365))
		plan.ReorderPoint = ReorderPoint(input.LeadTimeDays, plan.DailyUsage, input.SafetyStock)
		plan.EOQ = EOQ(plan.AnnualDemand, input.OrderingCost, input.HoldingCost)
		cogs := closing.IssuedCost.Sub(opening.IssuedCost)
		plan.Turnover = Turnover(cogs, AverageInventory(opening.Value, closing.Value))
		plan.OnHand = closing.Quantity
		plan.BelowReorder = plan.OnHand.LessThanOrEqual(plan.ReorderPoint)
		return nil
	})
	return plan, err
}
