package invoicing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type sequenceKey struct {
	tenantID int64
	prefix   string
}

type memoryState struct {
	invoices  map[uuid.UUID]Invoice
	sequences map[sequenceKey]int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		invoices:  make(map[uuid.UUID]Invoice, len(s.invoices)),
		sequences: make(map[sequenceKey]int64, len(s.sequences)),
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

// MemoryRepository is an in-process RepositoryPort. Transactions run one at a
// time against a copy of the state that replaces it only on success.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: (&memoryState{}).clone()}
}

// WithTx runs fn against a staged copy and commits it when fn succeeds.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.state.clone()
	if err := fn(ctx, &memoryTx{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) NextNumber(_ context.Context, tenantID int64, prefix string) (int64, error) {
	key := sequenceKey{tenantID, prefix}
	t.state.sequences[key]++
	return t.state.sequences[key], nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv Invoice) error {
	for _, other := range t.state.invoices {
		if other.TenantID == inv.TenantID && other.Number == inv.Number {
			return fmt.Errorf("%w: number %s exists", ErrInvalidInvoice, inv.Number)
		}
	}
	inv.Lines = append([]Line(nil), inv.Lines...)
	inv.Payments = nil
	t.state.invoices[inv.ID] = inv
	return nil
}

func (t *memoryTx) ReplaceDraft(_ context.Context, inv Invoice) error {
	current, ok := t.state.invoices[inv.ID]
	if !ok || current.TenantID != inv.TenantID || current.Status != StatusDraft {
		return ErrInvalidStatus
	}
	current.PartyID = inv.PartyID
	current.WarehouseID = inv.WarehouseID
	current.IssueDate = inv.IssueDate
	current.DueDate = inv.DueDate
	current.Subtotal = inv.Subtotal
	current.TaxTotal = inv.TaxTotal
	current.Total = inv.Total
	current.RecurrenceMonths = inv.RecurrenceMonths
	current.Lines = append([]Line(nil), inv.Lines...)
	current.UpdatedAt = inv.UpdatedAt
	t.state.invoices[inv.ID] = current
	return nil
}

func (t *memoryTx) GetInvoice(_ context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	inv, ok := t.state.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *memoryTx) GetInvoiceForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Invoice, error) {
	return t.GetInvoice(ctx, tenantID, id)
}

func (t *memoryTx) ListInvoices(_ context.Context, tenantID int64, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range t.state.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.Side != "" && inv.Side != filter.Side {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.PartyID != "" && inv.PartyID != filter.PartyID {
			continue
		}
		if filter.TemplateID != uuid.Nil && (!inv.TemplateID.Valid || inv.TemplateID.UUID != filter.TemplateID) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.Before(out[j].IssueDate)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, tenantID int64, id uuid.UUID, from, to Status, at time.Time) error {
	inv, ok := t.state.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return ErrInvoiceNotFound
	}
	if inv.Status != from {
		return &InvalidStateError{From: inv.Status, Action: "move to " + string(to)}
	}
	inv.Status = to
	inv.UpdatedAt = at
	t.state.invoices[id] = inv
	return nil
}

func (t *memoryTx) InsertPayment(_ context.Context, tenantID int64, p Payment) error {
	inv, ok := t.state.invoices[p.InvoiceID]
	if !ok || inv.TenantID != tenantID {
		return ErrInvoiceNotFound
	}
	for _, existing := range inv.Payments {
		if existing.Reference == p.Reference {
			return fmt.Errorf("%w: %s", ErrDuplicatePayment, p.Reference)
		}
	}
	inv.Payments = append(append([]Payment(nil), inv.Payments...), p)
	t.state.invoices[p.InvoiceID] = inv
	return nil
}

func (t *memoryTx) UpdateSettlement(_ context.Context, tenantID int64, id uuid.UUID, paid decimal.Decimal, status Status, at time.Time) error {
	inv, ok := t.state.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.Status = status
	inv.UpdatedAt = at
	t.state.invoices[id] = inv
	return nil
}

func (t *memoryTx) MarkShipped(_ context.Context, tenantID int64, id uuid.UUID, at time.Time) error {
	inv, ok := t.state.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return ErrInvoiceNotFound
	}
	if inv.ShippedAt != nil {
		return &InvalidStateError{From: inv.Status, Action: "ship already shipped"}
	}
	shipped := at
	inv.ShippedAt = &shipped
	inv.UpdatedAt = at
	t.state.invoices[id] = inv
	return nil
}
