package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"chitieu/internal/core"
	"chitieu/internal/export"
	"chitieu/internal/log"
	"chitieu/internal/services"
)

// expenseJSON is the API representation of an expense. amount is whole đồng.
type expenseJSON struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	RawText     string `json:"raw_text"`
}

func toJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID,
		UserID:      e.UserID,
		Amount:      e.Amount.Dong,
		Description: e.Description,
		Category:    e.Category,
		Date:        e.Date.In(core.Location).Format(core.TimestampLayout),
		RawText:     e.RawText,
	}
}

// fail logs err at a level matching its status and writes the error body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := log.FromContext(r.Context())
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, log.FieldError, err, log.FieldErrorType, errorType(status))
	} else {
		logger.WarnContext(r.Context(), msg, log.FieldError, err, log.FieldErrorType, errorType(status))
	}
	ErrorFor(err).Write(w)
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return log.ErrorTypeNotFound
	case status == http.StatusUnauthorized:
		return log.ErrorTypeAuth
	case status < http.StatusInternalServerError:
		return log.ErrorTypeValidation
	default:
		return log.ErrorTypeInternal
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := ParseRange(q, s.presets, s.now(), "last_7_days")
	if err != nil {
		s.fail(w, r, "Invalid list range", err)
		return
	}
	lq := core.ListQuery{From: rng.Start, To: rng.End, Category: q.Get("category")}
	if lq.Category != "" && !core.ValidCategory(lq.Category) {
		s.fail(w, r, "Invalid list category", fmt.Errorf("%w: %q", errParse, lq.Category))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, "Invalid list limit", fmt.Errorf("%w: limit %q", errParse, v))
			return
		}
		lq.Limit = n
	}

	items, err := s.svc.List(r.Context(), userID(r), lq)
	if err != nil {
		s.fail(w, r, "List expenses failed", err)
		return
	}
	out := make([]expenseJSON, 0, len(items))
	for _, e := range items {
		out = append(out, toJSON(e))
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleCreateExpense accepts the creation form (form-encoded or JSON).
// JSON clients get 201 with the record; plain HTML form posts are
// redirected back to the dashboard.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, "Parse create body failed", err)
		return
	}

	created, err := s.svc.Create(r.Context(), userID(r), services.NewExpense{
		Amount:      p.Get("amount"),
		Description: p.Get("description"),
		Category:    p.Get("category"),
		Date:        p.Get("date"),
		RawText:     p.Get("raw_text"),
	})
	if err != nil {
		s.fail(w, r, "Create expense failed", err)
		return
	}
	s.appMetrics.expensesCreated.Add(1)

	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", fmt.Sprintf("/api/expenses/%d", created.ID)).
		Body(toJSON(created)).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, "Invalid expense id", err)
		return
	}
	e, err := s.svc.Get(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, "Get expense failed", err)
		return
	}
	NewJSONResponse().Body(toJSON(e)).Write(w)
}

// handlePatchField applies a one-key JSON body such as {"amount": 150000}
// and answers with the full stored record.
func (s *Server) handlePatchField(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, "Invalid expense id", err)
		return
	}
	body, err := DecodeJSONObject(r)
	if err != nil {
		s.fail(w, r, "Parse patch body failed", err)
		return
	}
	patch, err := services.ParseFieldPatch(body)
	if err != nil {
		s.fail(w, r, "Invalid field patch", err)
		return
	}

	updated, err := s.svc.UpdateField(r.Context(), userID(r), id, patch)
	if err != nil {
		s.fail(w, r, "Update expense field failed", err)
		return
	}
	s.appMetrics.fieldsUpdated.Add(1)
	NewJSONResponse().Body(toJSON(updated)).Write(w)
}

// handleStats returns {category: total} for the window.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseRange(r.URL.Query(), s.presets, s.now(), "last_7_days")
	if err != nil {
		s.fail(w, r, "Invalid stats range", err)
		return
	}
	cats, err := s.svc.Stats(r.Context(), userID(r), rng.Start, rng.End)
	if err != nil {
		s.fail(w, r, "Stats failed", err)
		return
	}
	out := make(map[string]int64, len(cats))
	for _, c := range cats {
		out[c.Category] = c.Amount.Dong
	}
	NewJSONResponse().Body(out).Write(w)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseRange(r.URL.Query(), s.presets, s.now(), "last_30_days")
	if err != nil {
		s.fail(w, r, "Invalid export range", err)
		return
	}
	items, err := s.svc.List(r.Context(), userID(r), core.ListQuery{From: rng.Start, To: rng.End})
	if err != nil {
		s.fail(w, r, "Export list failed", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, items); err != nil {
		s.fail(w, r, "Export failed", err)
		return
	}

	start, end := rng.ISO()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="chi-tieu-%s-%s.xlsx"`, start, end))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expenses exported",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, userID(r),
		"count", len(items))
}
