package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the wire and storage layout for expense dates.
const TimestampLayout = "2006-01-02 15:04:05"

// MaxDescription is the longest description accepted, in characters.
const MaxDescription = 200

// Location is the fixed wall clock expenses are recorded in (UTC+7, no DST).
var Location = time.FixedZone("ICT", 7*60*60)

// Editable expense fields.
const (
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldDate        = "date"
	FieldRawText     = "raw_text"
)

// Categories are the selectable expense categories.
var Categories = []string{
	"food", "transport", "shopping", "entertainment",
	"bills", "health", "education", "other",
}

type (
	// Money is an amount in đồng. VND has no minor unit.
	Money struct {
		Dong int64
	}

	Expense struct {
		ID          int64
		UserID      int64
		Amount      Money
		Description string
		Category    string
		Date        time.Time
		RawText     string
	}

	// ListQuery filters expense listings. Zero values mean unbounded.
	ListQuery struct {
		From     time.Time
		To       time.Time
		Category string
		Limit    int
	}

	// FieldPatch is a single-field update of an existing expense.
	FieldPatch struct {
		Field string
		Value Value
	}

	CategoryAmount struct {
		Category string
		Amount   Money
		Count    int
	}

	// AuditEntry records one change to an expense.
	AuditEntry struct {
		ExpenseID int64
		UserID    int64
		Action    string
		Field     string
		OldValue  string
		NewValue  string
		At        time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNotNumeric       = errors.New("not a number")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidDate      = errors.New("invalid date")
	ErrUnknownField     = errors.New("unknown field")
	ErrNotFound         = errors.New("expense not found")
)

func (m Money) Validate() error {
	if m.Dong <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

var categoryLabels = map[string]string{
	"food":          "Ăn uống",
	"transport":     "Đi lại",
	"shopping":      "Mua sắm",
	"entertainment": "Giải trí",
	"bills":         "Hóa đơn",
	"health":        "Sức khỏe",
	"education":     "Giáo dục",
	"other":         "Khác",
}

// CategoryLabel returns the Vietnamese display name of a category.
func CategoryLabel(c string) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return c
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > MaxDescription {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrEmptyDescription, MaxDescription)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCategory(e.Category) {
		return ErrInvalidCategory
	}
	return nil
}

// FieldValue returns the current value of a named field.
func (e Expense) FieldValue(field string) (Value, error) {
	switch field {
	case FieldAmount:
		return Number(float64(e.Amount.Dong)), nil
	case FieldDescription:
		return Text(e.Description), nil
	case FieldCategory:
		return Text(e.Category), nil
	case FieldDate:
		return Text(e.Date.In(Location).Format(TimestampLayout)), nil
	case FieldRawText:
		return Text(e.RawText), nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

// Apply validates and applies p, returning the updated expense.
// Only amount, description and category can be edited in place.
func (e Expense) Apply(p FieldPatch) (Expense, error) {
	switch p.Field {
	case FieldAmount:
		if p.Value.Kind != KindNumber {
			return e, ErrNotNumeric
		}
		m, err := MoneyFromFloat(p.Value.Number)
		if err != nil {
			return e, err
		}
		if err := m.Validate(); err != nil {
			return e, err
		}
		e.Amount = m
	case FieldDescription:
		d := strings.TrimSpace(p.Value.String())
		if d == "" {
			return e, ErrEmptyDescription
		}
		if utf8.RuneCountInString(d) > MaxDescription {
			return e, fmt.Errorf("%w: description too long (max %d characters)", ErrEmptyDescription, MaxDescription)
		}
		e.Description = d
	case FieldCategory:
		c := p.Value.String()
		if !ValidCategory(c) {
			return e, fmt.Errorf("%w: %q", ErrInvalidCategory, c)
		}
		e.Category = c
	default:
		return e, fmt.Errorf("%w: %q", ErrUnknownField, p.Field)
	}
	return e, nil
}

// ParseTimestamp parses a stored or submitted expense date. Date-only
// values (YYYY-MM-DD) are accepted and mean midnight.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimestampLayout, "2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
