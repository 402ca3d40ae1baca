package webui

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	"chitieu/internal/core"
)

var ErrNotLoaded = errors.New("page not loaded")

// Row is an expense row as currently displayed.
type Row struct {
	ID          int64
	Date        string
	Description string
	Category    string
	Amount      string
}

// Snapshot is a copy of what the page shows.
type Snapshot struct {
	Generation uint64
	Query      url.Values
	Range      string
	Total      string
	AvgPerDay  string
	Count      string
	Rows       []Row
	// Form holds the current values of the creation form.
	Form         url.Values
	Notification string
	Resyncs      uint64
}

// Snapshot copies the displayed state out of the loop.
func (c *PageController) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if derr := c.do(ctx, func() {
		if c.doc == nil {
			err = ErrNotLoaded
			return
		}
		snap = c.snapshot()
	}); derr != nil {
		return Snapshot{}, derr
	}
	return snap, err
}

func (c *PageController) snapshot() Snapshot {
	text := func(id string) string {
		if el := c.doc.ByID(id); el != nil {
			return strings.TrimSpace(el.Value())
		}
		return ""
	}
	snap := Snapshot{
		Generation:   c.generation,
		Query:        cloneValues(c.query),
		Range:        text(inputRange),
		Total:        text("total"),
		AvgPerDay:    text("avg-per-day"),
		Count:        text("count"),
		Notification: text(notifications),
		Resyncs:      c.resyncs,
	}
	if form := c.doc.ByID(FormExpense); form != nil {
		snap.Form = form.FormValues()
	}
	for _, row := range c.doc.Rows() {
		raw, _ := row.Attr(attrRow)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		r := Row{ID: id}
		if dates := row.ByClass("date"); len(dates) > 0 {
			r.Date = strings.TrimSpace(dates[0].Text())
		}
		for key, el := range c.fields {
			if key.ExpenseID != id {
				continue
			}
			v := strings.TrimSpace(el.Value())
			switch key.Field {
			case core.FieldDescription:
				r.Description = v
			case core.FieldCategory:
				r.Category = v
			case core.FieldAmount:
				r.Amount = v
			}
		}
		snap.Rows = append(snap.Rows, r)
	}
	return snap
}

// FieldText returns the current value shown by a bound field.
func (c *PageController) FieldText(ctx context.Context, key FieldKey) (string, error) {
	var (
		text string
		err  error
	)
	if derr := c.do(ctx, func() {
		el := c.fields[key]
		if el == nil {
			err = ErrNotLoaded
			return
		}
		text = el.Value()
	}); derr != nil {
		return "", derr
	}
	return text, err
}

// Session returns a copy of the latest session of a field.
func (c *PageController) Session(ctx context.Context, key FieldKey) (FieldEditSession, bool, error) {
	var (
		s  FieldEditSession
		ok bool
	)
	err := c.do(ctx, func() {
		if cur := c.sessions[key]; cur != nil {
			s, ok = cur.snapshot(), true
		}
	})
	return s, ok, err
}

// Render writes the current document as HTML.
func (c *PageController) Render(ctx context.Context, w io.Writer) error {
	var err error
	if derr := c.do(ctx, func() {
		if c.doc == nil {
			err = ErrNotLoaded
			return
		}
		err = c.doc.Render(w)
	}); derr != nil {
		return derr
	}
	return err
}

// Presets lists the picker's named ranges.
func (c *PageController) Presets() []string {
	var keys []string
	for _, p := range c.picker.Presets() {
		keys = append(keys, p.Key)
	}
	return keys
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
