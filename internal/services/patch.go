package services

import (
	"errors"
	"fmt"
	"sort"

	"chitieu/internal/core"
)

// ErrInvalidPatch reports a field-edit body that is not exactly one known field.
var ErrInvalidPatch = errors.New("invalid field patch")

// ParseFieldPatch turns a decoded PATCH body such as {"amount": 150000}
// into a FieldPatch. Amounts sent as numeric strings are accepted.
func ParseFieldPatch(body map[string]any) (core.FieldPatch, error) {
	if len(body) != 1 {
		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return core.FieldPatch{}, fmt.Errorf("%w: expected exactly one field, got %v", ErrInvalidPatch, keys)
	}

	var (
		field string
		raw   any
	)
	for k, v := range body {
		field, raw = k, v
	}

	switch field {
	case core.FieldAmount, core.FieldDescription, core.FieldCategory:
	default:
		return core.FieldPatch{}, fmt.Errorf("%w: %w: %q", ErrInvalidPatch, core.ErrUnknownField, field)
	}

	v, err := core.ValueOf(raw)
	if err != nil {
		return core.FieldPatch{}, fmt.Errorf("%w: %s: %v", ErrInvalidPatch, field, err)
	}
	if field == core.FieldAmount && v.Kind == core.KindText {
		f, err := core.ParseAmount(v.Text)
		if err != nil {
			return core.FieldPatch{}, fmt.Errorf("%w: %s: %w", ErrInvalidPatch, field, err)
		}
		v = core.Number(f)
	}
	if field != core.FieldAmount && v.Kind == core.KindNumber {
		return core.FieldPatch{}, fmt.Errorf("%w: %s must be a string", ErrInvalidPatch, field)
	}
	return core.FieldPatch{Field: field, Value: v}, nil
}
