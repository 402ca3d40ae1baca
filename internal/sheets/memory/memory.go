package memory

import (
	"context"
	"fmt"
	"sync"

	"chitieu/internal/core"
	"chitieu/internal/sheets"
)

// Store is an in-memory audit sink.
type Store struct {
	mu   sync.Mutex
	rows [][]any
}

var _ sheets.AuditWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendAudit stores the row and returns a synthetic row reference.
func (s *Store) AppendAudit(_ context.Context, a core.AuditEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, sheets.Row(a))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}
