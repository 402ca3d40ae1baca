package http

import (
	"context"
	"math"

	"chitieu/internal/core"
	"chitieu/internal/daterange"
)

// dashboardView feeds index.html. Amounts and dates are emitted raw; the
// page formats them once when it becomes ready.
type dashboardView struct {
	RangeText  string
	RangeStart string
	RangeEnd   string
	Presets    []daterange.Preset

	Total     int64
	AvgPerDay int64
	Count     int

	Categories []categoryRow
	Expenses   []expenseRow
	Options    []string
	Now        string
}

type categoryRow struct {
	Category string
	Amount   int64
	Count    int
	// Width is the bar length in percent of the largest category.
	Width int
}

type expenseRow struct {
	ID          int64
	Date        string
	Description string
	Category    string
	Amount      int64
}

func (s *Server) buildDashboard(ctx context.Context, userID int64, rng daterange.Range) (dashboardView, error) {
	summary, err := s.svc.Summary(ctx, userID, rng.Start, rng.End)
	if err != nil {
		return dashboardView{}, err
	}
	items, err := s.svc.List(ctx, userID, core.ListQuery{From: rng.Start, To: rng.End})
	if err != nil {
		return dashboardView{}, err
	}

	start, end := rng.ISO()
	v := dashboardView{
		RangeText:  daterange.Format(rng),
		RangeStart: start,
		RangeEnd:   end,
		Presets:    s.presets.List(),
		Total:      summary.Total.Dong,
		AvgPerDay:  int64(math.Round(summary.AvgPerDay)),
		Count:      summary.Count,
		Options:    core.Categories,
		Now:        s.now().Format("2006-01-02T15:04"),
	}

	var largest int64
	for _, c := range summary.Categories {
		if c.Amount.Dong > largest {
			largest = c.Amount.Dong
		}
	}
	for _, c := range summary.Categories {
		width := 0
		if largest > 0 {
			width = int((c.Amount.Dong*100 + largest/2) / largest)
			if width < 2 {
				width = 2
			}
		}
		v.Categories = append(v.Categories, categoryRow{
			Category: c.Category,
			Amount:   c.Amount.Dong,
			Count:    c.Count,
			Width:    width,
		})
	}

	for _, e := range items {
		v.Expenses = append(v.Expenses, expenseRow{
			ID:          e.ID,
			Date:        e.Date.In(core.Location).Format(core.TimestampLayout),
			Description: e.Description,
			Category:    e.Category,
			Amount:      e.Amount.Dong,
		})
	}
	return v, nil
}
