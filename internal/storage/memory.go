package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"chitieu/internal/core"
)

// MemoryRepository keeps everything in process. It backs DATA_BACKEND=memory
// and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	expenses map[int64]core.Expense
	audit    []core.AuditEntry
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ AuditStore = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{expenses: make(map[int64]core.Expense)}
}

func (m *MemoryRepository) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.Date = e.Date.In(core.Location).Truncate(time.Second)
	m.expenses[e.ID] = e
	return e, nil
}

func (m *MemoryRepository) GetExpense(_ context.Context, userID, id int64) (core.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (m *MemoryRepository) ListExpenses(_ context.Context, userID int64, q core.ListQuery) ([]core.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Expense
	for _, e := range m.expenses {
		if e.UserID != userID {
			continue
		}
		if !q.From.IsZero() && e.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Date.After(q.To) {
			continue
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) UpdateExpenseField(_ context.Context, userID, id int64, p core.FieldPatch) (core.Expense, core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.expenses[id]
	if !ok || before.UserID != userID {
		return core.Expense{}, core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	after, err := before.Apply(p)
	if err != nil {
		return core.Expense{}, core.Expense{}, err
	}
	m.expenses[id] = after
	return before, after, nil
}

func (m *MemoryRepository) CategoryTotals(ctx context.Context, userID int64, from, to time.Time) ([]core.CategoryAmount, error) {
	list, _ := m.ListExpenses(ctx, userID, core.ListQuery{From: from, To: to})
	byCat := map[string]*core.CategoryAmount{}
	for _, e := range list {
		ca, ok := byCat[e.Category]
		if !ok {
			ca = &core.CategoryAmount{Category: e.Category}
			byCat[e.Category] = ca
		}
		ca.Amount.Dong += e.Amount.Dong
		ca.Count++
	}
	out := make([]core.CategoryAmount, 0, len(byCat))
	for _, ca := range byCat {
		out = append(out, *ca)
	}
	slices.SortFunc(out, func(a, b core.CategoryAmount) int {
		if c := cmp.Compare(b.Amount.Dong, a.Amount.Dong); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (m *MemoryRepository) AppendAudit(_ context.Context, a core.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, a)
	return nil
}

func (m *MemoryRepository) ListAudit(_ context.Context, expenseID int64) ([]core.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.AuditEntry
	for _, a := range m.audit {
		if a.ExpenseID == expenseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Close() error { return nil }
