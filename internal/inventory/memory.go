package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type movementKey struct {
	tenantID int64
	key      string
}

// MemoryRepository is an in-process RepositoryPort with optimistic commit:
// transactions read committed state, stage their writes and are rejected
// with ErrVersionConflict when a level they update changed meanwhile.
type MemoryRepository struct {
	mu        sync.Mutex
	products  map[uuid.UUID]Product
	levels    map[LevelKey]StockLevel
	movements []StockMovement
	keys      map[movementKey]int
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[uuid.UUID]Product),
		levels:   make(map[LevelKey]StockLevel),
		keys:     make(map[movementKey]int),
	}
}

type levelWrite struct {
	level    StockLevel
	expected int64
}

type memoryTx struct {
	repo      *MemoryRepository
	products  map[uuid.UUID]Product
	levels    map[LevelKey]levelWrite
	movements []StockMovement
}

// WithTx runs fn and commits its staged writes atomically.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:     m,
		products: make(map[uuid.UUID]Product),
		levels:   make(map[LevelKey]levelWrite),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *MemoryRepository) commit(tx *memoryTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range tx.levels {
		if m.levels[key].Version != w.expected {
			return ErrVersionConflict
		}
	}
	for _, mv := range tx.movements {
		if _, ok := m.keys[movementKey{mv.TenantID, mv.IdempotencyKey}]; ok {
			return ErrDuplicateMovement
		}
	}
	for _, p := range tx.products {
		for id, other := range m.products {
			if id != p.ID && other.TenantID == p.TenantID && other.SKU == p.SKU {
				return ErrDuplicateSKU
			}
		}
	}
	for id, p := range tx.products {
		m.products[id] = p
	}
	for key, w := range tx.levels {
		m.levels[key] = w.level
	}
	for _, mv := range tx.movements {
		m.keys[movementKey{mv.TenantID, mv.IdempotencyKey}] = len(m.movements)
		m.movements = append(m.movements, mv)
	}
	return nil
}

func (t *memoryTx) UpsertProduct(_ context.Context, p Product) error {
	t.products[p.ID] = p
	return nil
}

func (t *memoryTx) GetProduct(_ context.Context, tenantID int64, id uuid.UUID) (Product, error) {
	if p, ok := t.products[id]; ok && p.TenantID == tenantID {
		return p, nil
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	p, ok := t.repo.products[id]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (t *memoryTx) ListProducts(_ context.Context, tenantID int64) ([]Product, error) {
	t.repo.mu.Lock()
	merged := make(map[uuid.UUID]Product)
	for id, p := range t.repo.products {
		merged[id] = p
	}
	t.repo.mu.Unlock()
	for id, p := range t.products {
		merged[id] = p
	}
	var out []Product
	for _, p := range merged {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (t *memoryTx) GetLevel(_ context.Context, key LevelKey) (StockLevel, error) {
	if w, ok := t.levels[key]; ok {
		return w.level, nil
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if level, ok := t.repo.levels[key]; ok {
		return level, nil
	}
	return StockLevel{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}, nil
}

func (t *memoryTx) ListLevels(_ context.Context, tenantID int64) ([]StockLevel, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out []StockLevel
	for _, level := range t.repo.levels {
		if level.TenantID == tenantID {
			out = append(out, level)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID.String() < out[j].ProductID.String()
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (t *memoryTx) UpdateLevel(_ context.Context, level StockLevel, expectedVersion int64) error {
	key := level.Key()
	if w, ok := t.levels[key]; ok {
		if w.level.Version != expectedVersion {
			return ErrVersionConflict
		}
		t.levels[key] = levelWrite{level: level, expected: w.expected}
		return nil
	}
	t.levels[key] = levelWrite{level: level, expected: expectedVersion}
	return nil
}

func (t *memoryTx) FindMovementByKey(_ context.Context, tenantID int64, key string) (StockMovement, error) {
	for _, mv := range t.movements {
		if mv.TenantID == tenantID && mv.IdempotencyKey == key {
			return mv, nil
		}
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	idx, ok := t.repo.keys[movementKey{tenantID, key}]
	if !ok {
		return StockMovement{}, ErrMovementNotFound
	}
	return t.repo.movements[idx], nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, mv StockMovement) error {
	if _, err := t.FindMovementByKey(ctx, mv.TenantID, mv.IdempotencyKey); err == nil {
		return ErrDuplicateMovement
	}
	t.movements = append(t.movements, mv)
	return nil
}

func (t *memoryTx) ListMovements(_ context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, error) {
	t.repo.mu.Lock()
	all := make([]StockMovement, 0, len(t.repo.movements)+len(t.movements))
	all = append(all, t.repo.movements...)
	t.repo.mu.Unlock()
	all = append(all, t.movements...)

	var out []StockMovement
	for _, mv := range all {
		if mv.TenantID != tenantID {
			continue
		}
		if filter.ProductID != uuid.Nil && mv.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && mv.WarehouseID != filter.WarehouseID && mv.DestinationWarehouseID != filter.WarehouseID {
			continue
		}
		if !filter.Until.IsZero() && mv.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, mv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
