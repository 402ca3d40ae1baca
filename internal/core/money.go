// Package core provides the expense domain model, money handling and
// raw input coercion.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MaxAmount bounds the magnitude of any amount, in đồng.
const MaxAmount = 1 << 62

var currencyMarks = strings.NewReplacer(
	"₫", "", "đ", "", "VND", "", "vnd", "", "Vnd", "",
	",", "", ".", "",
)

// ParseAmount parses a user-entered amount in đồng.
//
// Whitespace, the currency sign and the grouping separators (both dot and
// comma) are dropped before parsing. Only an optional sign and digits may
// remain. VND has no minor unit, so there is no decimal separator.
//
// Examples:
//
//	ParseAmount("150000")     -> 150000, nil
//	ParseAmount("150.000")    -> 150000, nil
//	ParseAmount(" 1,250,000") -> 1250000, nil
//	ParseAmount("150.000 ₫")  -> 150000, nil
//	ParseAmount("12abc")      -> 0, ErrNotNumeric
//
// Magnitudes above MaxAmount are rejected with ErrNotNumeric.
func ParseAmount(s string) (float64, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = currencyMarks.Replace(s)
	digits := strings.TrimLeft(s, "+-")
	if digits == "" || len(s)-len(digits) > 1 {
		return 0, ErrNotNumeric
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, ErrNotNumeric
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > MaxAmount {
		return 0, ErrNotNumeric
	}
	return f, nil
}

// MoneyFromFloat rounds f half away from zero to whole đồng.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxAmount {
		return Money{}, ErrInvalidAmount
	}
	return Money{Dong: int64(math.Round(f))}, nil
}

// ParseMoney parses and validates a positive amount.
func ParseMoney(s string) (Money, error) {
	f, err := ParseAmount(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, err := MoneyFromFloat(f)
	if err != nil {
		return Money{}, err
	}
	return m, m.Validate()
}

// Float returns the amount as a float64 for display and JSON.
func (m Money) Float() float64 {
	return float64(m.Dong)
}
