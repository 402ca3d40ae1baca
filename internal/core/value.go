package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the type carried by a Value.
type Kind int

const (
	KindText Kind = iota
	KindNumber
)

// Value is a typed field value, either text or a number.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
}

func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// String returns the natural string form of v.
func (v Value) String() string {
	if v.Kind == KindNumber {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Text
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindNumber {
		return v.Number == o.Number
	}
	return v.Text == o.Text
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber {
		return json.Marshal(v.Number)
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	got, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = got
	return nil
}

// ValueOf converts a decoded JSON scalar into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case float64:
		return Number(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s", ErrNotNumeric, t)
		}
		return Number(f), nil
	case string:
		return Text(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}
