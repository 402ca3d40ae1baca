// Package sheets defines the outbound port for mirroring the expense audit
// trail to a spreadsheet.
package sheets

import (
	"context"

	"chitieu/internal/core"
)

// AuditWriter appends one audit entry and returns a reference to the written row.
type AuditWriter interface {
	AppendAudit(ctx context.Context, a core.AuditEntry) (rowRef string, err error)
}

// Row renders an audit entry as spreadsheet cells.
func Row(a core.AuditEntry) []any {
	return []any{
		a.At.In(core.Location).Format(core.TimestampLayout),
		a.ExpenseID,
		a.UserID,
		a.Action,
		a.Field,
		a.OldValue,
		a.NewValue,
	}
}

// Header is the first row of an audit sheet.
var Header = []any{"at", "expense_id", "user_id", "action", "field", "old_value", "new_value"}
