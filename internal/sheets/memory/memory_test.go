package memory

import (
	"context"
	"testing"
	"time"

	"chitieu/internal/core"
)

func TestStore_AppendAudit(t *testing.T) {
	s := New()
	at := time.Date(2026, 10, 15, 14, 30, 0, 0, core.Location)
	ref, err := s.AppendAudit(context.Background(), core.AuditEntry{
		ExpenseID: 3, UserID: 1, Action: "field_updated", Field: "amount",
		OldValue: "50000", NewValue: "150000", At: at,
	})
	if err != nil || ref != "mem:1" {
		t.Fatalf("AppendAudit = %q, %v", ref, err)
	}
	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][0] != "2026-10-15 14:30:00" || rows[0][3] != "field_updated" || rows[0][6] != "150000" {
		t.Fatalf("row = %v", rows[0])
	}
}
