package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"chitieu/internal/auth"
	"chitieu/internal/core"
	"chitieu/internal/middleware/ratelimit"
	"chitieu/internal/services"
	"chitieu/internal/storage"
)

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, core.Location)

type testEnv struct {
	srv      *Server
	svc      *services.ExpenseService
	sessions *auth.Manager
}

func newTestEnv(t *testing.T, rl ratelimit.Config) *testEnv {
	t.Helper()
	svc := services.NewExpenseService(storage.NewMemoryRepository(), nil, services.Options{
		Now: func() time.Time { return testNow },
	})
	sessions := auth.NewManager("test-secret-0123456789", time.Hour, false)
	srv := NewServer(":0", svc, Options{Sessions: sessions, RateLimit: rl})
	t.Cleanup(srv.StopBackground)
	return &testEnv{srv: srv, svc: svc, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, req *http.Request, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	if userID > 0 {
		token, err := e.sessions.Token(userID)
		if err != nil {
			t.Fatal(err)
		}
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, userID int64, amount, desc, category, date string) core.Expense {
	t.Helper()
	exp, err := e.svc.Create(t.Context(), userID, services.NewExpense{
		Amount: amount, Description: desc, Category: category, Date: date,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return exp
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, path, nil), 0)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestIndexLoginAndDashboard(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.seed(t, 1, "100000", "Cà phê", "food", "2026-10-14 08:30:00")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil), 0)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="login-form"`) {
		t.Fatalf("anonymous index: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/", nil), 1)
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	for _, want := range []string{
		`data-expense-row="1"`,
		`data-field="amount">100000</td>`,
		`<td class="date">2026-10-14 08:30:00</td>`,
		`id="expense-form"`,
		`id="filter-form"`,
		`value="01/10/2026 - 31/10/2026"`,
		`<option value="food" selected>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("user_id=7"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req, 0)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d", rec.Code)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("no session cookie")
	}
	if uid, err := env.sessions.Parse(session.Value); err != nil || uid != 7 {
		t.Errorf("session user = %d, %v", uid, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("user_id=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(t, req, 0); rec.Code != http.StatusBadRequest {
		t.Errorf("bad login status = %d", rec.Code)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/logout", nil), 7)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("logout status = %d", rec.Code)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/expenses"},
		{http.MethodPost, "/api/expenses"},
		{http.MethodPatch, "/api/expenses/1/field"},
		{http.MethodGet, "/api/stats"},
	} {
		rec := env.do(t, httptest.NewRequest(tc.method, tc.path, nil), 0)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", tc.method, tc.path, rec.Code)
		}
		detail(t, rec)
	}
}

func TestCreateExpense(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	form := url.Values{
		"amount":      {"45.000"},
		"description": {"Phở bò"},
		"category":    {"food"},
		"date":        {"2026-10-15T07:45"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := env.do(t, req, 1)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var got expenseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Amount != 45000 || got.Description != "Phở bò" || got.Date != "2026-10-15 07:45:00" {
		t.Errorf("created = %+v", got)
	}
	if rec.Header().Get("Location") == "" {
		t.Error("missing Location")
	}

	// A browser form post without JavaScript is redirected.
	req = httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if rec := env.do(t, req, 1); rec.Code != http.StatusSeeOther {
		t.Errorf("html form post = %d, want 303", rec.Code)
	}

	for name, body := range map[string]string{
		"bad amount":      "amount=abc&description=x&category=food",
		"zero amount":     "amount=0&description=x&category=food",
		"no description":  "amount=1000&description=&category=food",
		"unknown category": "amount=1000&description=x&category=travel",
		"bad date":        "amount=1000&description=x&category=food&date=yesterday",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(t, req, 1)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", name, rec.Code)
		}
	}
}

func patch(t *testing.T, env *testEnv, userID int64, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return env.do(t, req, userID)
}

func TestPatchField(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	e := env.seed(t, 1, "100000", "Cà phê", "food", "2026-10-14 08:30:00")
	path := "/api/expenses/1/field"

	rec := patch(t, env, 1, path, `{"amount": 150000.4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	var got expenseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Amount != 150000 || got.ID != e.ID || got.Description != "Cà phê" {
		t.Errorf("patched = %+v", got)
	}

	rec = patch(t, env, 1, path, `{"description": "  Bạc xỉu  "}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"description":"Bạc xỉu"`) {
		t.Errorf("description patch = %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		user   int64
		path   string
		body   string
		status int
	}{
		{"two keys", 1, path, `{"amount": 1, "category": "food"}`, http.StatusUnprocessableEntity},
		{"unknown key", 1, path, `{"date": "2026-10-01"}`, http.StatusUnprocessableEntity},
		{"not numeric", 1, path, `{"amount": "abc"}`, http.StatusUnprocessableEntity},
		{"zero", 1, path, `{"amount": 0}`, http.StatusUnprocessableEntity},
		{"empty description", 1, path, `{"description": "  "}`, http.StatusUnprocessableEntity},
		{"bad category", 1, path, `{"category": "travel"}`, http.StatusUnprocessableEntity},
		{"malformed json", 1, path, `{"amount":`, http.StatusBadRequest},
		{"array body", 1, path, `[1]`, http.StatusBadRequest},
		{"bad id", 1, "/api/expenses/x/field", `{"amount": 1}`, http.StatusBadRequest},
		{"missing", 1, "/api/expenses/99/field", `{"amount": 1}`, http.StatusNotFound},
		{"other user", 2, path, `{"amount": 1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := patch(t, env, tt.user, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if detail(t, rec) == "" {
				t.Error("empty detail")
			}
		})
	}
}

func TestGetListAndStats(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.seed(t, 1, "100000", "Cà phê", "food", "2026-10-14 08:30:00")
	env.seed(t, 1, "30000", "Xe ôm", "transport", "2026-10-15 09:00:00")
	env.seed(t, 1, "500000", "Điện", "bills", "2026-09-01 09:00:00")
	env.seed(t, 2, "1", "khác", "other", "2026-10-15 09:00:00")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses/2", nil), 1)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"amount":30000`) {
		t.Errorf("get = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses?days=7", nil), 1)
	var list []expenseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != 2 {
		t.Errorf("list = %+v", list)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses?start=2026-09-01&end=2026-09-30&category=bills", nil), 1)
	list = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Amount != 500000 {
		t.Errorf("filtered list = %+v", list)
	}

	if rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses?category=travel", nil), 1); rec.Code != http.StatusBadRequest {
		t.Errorf("bad category filter = %d", rec.Code)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/stats?days=7", nil), 1)
	var stats map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats["food"] != 100000 || stats["transport"] != 30000 {
		t.Errorf("stats = %v", stats)
	}

	if rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/stats?days=0", nil), 1); rec.Code != http.StatusBadRequest {
		t.Errorf("days=0 = %d", rec.Code)
	}
}

func TestExportXLSX(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.seed(t, 1, "100000", "Cà phê", "food", "2026-10-14 08:30:00")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses/export.xlsx?days=30", nil), 1)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) == 0 {
		t.Error("workbook has no sheets")
	}
}

func TestRateLimitOnMutatingRequests(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{RequestsPerSecond: 0.001, Burst: 1})
	env.seed(t, 1, "100000", "Cà phê", "food", "2026-10-14 08:30:00")

	if rec := patch(t, env, 1, "/api/expenses/1/field", `{"amount": 120000}`); rec.Code != http.StatusOK {
		t.Fatalf("first patch = %d", rec.Code)
	}
	rec := patch(t, env, 1, "/api/expenses/1/field", `{"amount": 130000}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second patch = %d, want 429", rec.Code)
	}
	detail(t, rec)

	if rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/expenses", nil), 1); rec.Code != http.StatusOK {
		t.Errorf("reads must not be limited: %d", rec.Code)
	}
}
