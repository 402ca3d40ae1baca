package core

import (
	"fmt"
	"strings"
)

// FieldKind selects how raw input for a field is coerced and displayed.
type FieldKind int

const (
	FieldKindText FieldKind = iota
	FieldKindNumber
	FieldKindSelect
	FieldKindDate
)

// KindOf returns the kind of a named field. Unknown fields are free text.
func KindOf(field string) FieldKind {
	switch field {
	case FieldAmount:
		return FieldKindNumber
	case FieldCategory:
		return FieldKindSelect
	case FieldDate:
		return FieldKindDate
	}
	return FieldKindText
}

// CoercionKind classifies a coercion failure.
type CoercionKind int

const (
	NotNumeric CoercionKind = iota + 1
)

func (k CoercionKind) String() string {
	switch k {
	case NotNumeric:
		return "not_numeric"
	}
	return "unknown"
}

// CoercionError reports raw input that cannot become a typed value.
type CoercionError struct {
	Field string
	Input string
	Kind  CoercionKind
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s: %q is %s", e.Field, e.Input, e.Kind)
}

func (e *CoercionError) Is(target error) bool {
	return e.Kind == NotNumeric && target == ErrNotNumeric
}

// Coerce converts raw user input for field into a typed value.
//
// Numeric fields accept grouped and currency-decorated input:
//
//	Coerce("amount", "150.000 ₫") -> Number(150000)
//	Coerce("amount", "abc")       -> *CoercionError{Kind: NotNumeric}
//
// Select values pass through untouched. Everything else is trimmed text,
// and the empty string is a valid value.
func Coerce(field, raw string) (Value, error) {
	switch KindOf(field) {
	case FieldKindNumber:
		f, err := ParseAmount(raw)
		if err != nil {
			return Value{}, &CoercionError{Field: field, Input: raw, Kind: NotNumeric}
		}
		return Number(f), nil
	case FieldKindSelect:
		return Text(raw), nil
	}
	return Text(strings.TrimSpace(raw)), nil
}
