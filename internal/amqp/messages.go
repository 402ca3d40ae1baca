package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chitieu/internal/core"
)

type EventType string

const (
	EventCreated      EventType = "created"
	EventFieldUpdated EventType = "field_updated"
)

// ExpenseEvent describes one change to an expense. The worker turns it
// into an audit row.
type ExpenseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ExpenseID int64     `json:"expense_id"`
	UserID    int64     `json:"user_id"`
	Field     string    `json:"field,omitempty"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCreatedEvent builds the event published after an expense is created.
func NewCreatedEvent(e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		ID:        uuid.NewString(),
		Type:      EventCreated,
		ExpenseID: e.ID,
		UserID:    e.UserID,
		NewValue:  fmt.Sprintf("%d %s %s", e.Amount.Dong, e.Category, e.Description),
		Timestamp: time.Now(),
	}
}

// NewFieldUpdatedEvent builds the event for a single-field edit.
func NewFieldUpdatedEvent(before, after core.Expense, field string) *ExpenseEvent {
	ev := &ExpenseEvent{
		ID:        uuid.NewString(),
		Type:      EventFieldUpdated,
		ExpenseID: after.ID,
		UserID:    after.UserID,
		Field:     field,
		Timestamp: time.Now(),
	}
	if v, err := before.FieldValue(field); err == nil {
		ev.OldValue = v.String()
	}
	if v, err := after.FieldValue(field); err == nil {
		ev.NewValue = v.String()
	}
	return ev
}

// AuditEntry converts the event into its audit row.
func (m *ExpenseEvent) AuditEntry() core.AuditEntry {
	return core.AuditEntry{
		ExpenseID: m.ExpenseID,
		UserID:    m.UserID,
		Action:    string(m.Type),
		Field:     m.Field,
		OldValue:  m.OldValue,
		NewValue:  m.NewValue,
		At:        m.Timestamp,
	}
}

func (m *ExpenseEvent) Validate() error {
	switch m.Type {
	case EventCreated, EventFieldUpdated:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.ExpenseID <= 0 {
		return fmt.Errorf("event %s: missing expense id", m.ID)
	}
	if m.Type == EventFieldUpdated && m.Field == "" {
		return fmt.Errorf("event %s: missing field", m.ID)
	}
	return nil
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates an event.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
