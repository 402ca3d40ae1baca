// Package storage persists expenses and their audit trail.
package storage

import (
	"context"
	"time"

	"chitieu/internal/core"
)

// Repository is the persistence port used by the expense service.
// Lookups are always scoped to a user; another user's expense is ErrNotFound.
type Repository interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, userID int64, q core.ListQuery) ([]core.Expense, error)
	// UpdateExpenseField applies p atomically and returns the record before and after.
	UpdateExpenseField(ctx context.Context, userID, id int64, p core.FieldPatch) (before, after core.Expense, err error)
	CategoryTotals(ctx context.Context, userID int64, from, to time.Time) ([]core.CategoryAmount, error)
	Close() error
}

// AuditStore records and lists expense changes.
type AuditStore interface {
	AppendAudit(ctx context.Context, a core.AuditEntry) error
	ListAudit(ctx context.Context, expenseID int64) ([]core.AuditEntry, error)
}
