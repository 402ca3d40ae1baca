// Package format renders field values for display in the vi locale.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"chitieu/internal/core"
)

// ShortDateLayout is the DD/MM/YYYY layout used by date inputs and the range picker.
const ShortDateLayout = "02/01/2006"

// SymbolSeparator sits between an amount and its currency sign. It is the
// no-break space the vi-VN browser formatter emits.
const SymbolSeparator = "\u00a0"

var symbols = map[currency.Unit]string{
	currency.MustParseISO("VND"): "₫",
	currency.EUR:                 "€",
	currency.USD:                 "$",
}

// Formatter formats numbers, money and dates for one locale.
// It is safe for concurrent use.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	unit    currency.Unit
	scale   int
	loc     *time.Location
}

// New returns the vi / VND formatter.
func New() *Formatter {
	return NewFor(language.Vietnamese, currency.MustParseISO("VND"), core.Location)
}

func NewFor(tag language.Tag, unit currency.Unit, loc *time.Location) *Formatter {
	scale, _ := currency.Standard.Rounding(unit)
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		unit:    unit,
		scale:   scale,
		loc:     loc,
	}
}

// Scale is the number of minor digits of the configured currency.
func (f *Formatter) Scale() int { return f.scale }

// Round rounds v to the currency scale.
func (f *Formatter) Round(v float64) float64 {
	p := math.Pow10(f.scale)
	return math.Round(v*p) / p
}

// Number renders v with locale grouping, rounded to the currency scale.
func (f *Formatter) Number(v float64) string {
	v = f.Round(v)
	if f.scale == 0 && math.Abs(v) < math.MaxInt64 {
		return f.printer.Sprintf("%d", int64(v))
	}
	return f.printer.Sprint(number.Decimal(v, number.Scale(f.scale)))
}

// Currency renders v as a money amount, e.g. "150.000 ₫" joined by
// SymbolSeparator.
func (f *Formatter) Currency(v float64) string {
	sym, ok := symbols[f.unit]
	if !ok {
		sym = f.unit.String()
	}
	return f.Number(v) + SymbolSeparator + sym
}

// DateTime renders t as "15 tháng 10, 2026 14:30".
func (f *Formatter) DateTime(t time.Time) string {
	t = t.In(f.loc)
	return fmt.Sprintf("%d tháng %d, %d %02d:%02d", t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute())
}

// ShortDate renders t as DD/MM/YYYY.
func (f *Formatter) ShortDate(t time.Time) string {
	return t.In(f.loc).Format(ShortDateLayout)
}

// Format renders a field value the way an editable cell shows it.
func (f *Formatter) Format(field string, v core.Value) string {
	switch core.KindOf(field) {
	case core.FieldKindNumber:
		if v.Kind == core.KindNumber {
			return f.Number(v.Number)
		}
	case core.FieldKindDate:
		if t, err := core.ParseTimestamp(v.String()); err == nil {
			return f.DateTime(t)
		}
	}
	return v.String()
}

// DisplayAmount renders the raw text of an amount display element.
// Text that does not parse as a plain number is returned unchanged.
func (f *Formatter) DisplayAmount(raw string) (string, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return raw, false
	}
	return f.Currency(n), true
}

// DisplayDate renders the raw text of a date display element.
// Text that is not a stored timestamp is returned unchanged.
func (f *Formatter) DisplayDate(raw string) (string, bool) {
	t, err := core.ParseTimestamp(raw)
	if err != nil {
		return raw, false
	}
	return f.DateTime(t), true
}
