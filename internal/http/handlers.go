package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chitieu/internal/auth"
	"chitieu/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ready(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("expenses_created_total", "counter", "Expenses created", s.appMetrics.expensesCreated.Load())
	metric("expense_fields_updated_total", "counter", "Inline field edits applied", s.appMetrics.fieldsUpdated.Load())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

// handleIndex renders the dashboard, or the login page without a session.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	uid, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.render(w, r, http.StatusOK, "login.html", loginView{})
		return
	}

	rng, err := ParseRange(r.URL.Query(), s.presets, s.now(), "this_month")
	if err != nil {
		logger.WarnContext(r.Context(), "Invalid dashboard range, using default", log.FieldError, err)
		rng, _ = s.presets.Resolve("this_month", s.now())
	}

	view, err := s.buildDashboard(r.Context(), uid, rng)
	if err != nil {
		logger.ErrorContext(r.Context(), "Dashboard load failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldOperation, log.OpList,
			log.FieldUserID, uid)
		http.Error(w, "Không tải được dữ liệu", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "index.html", view)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

type loginView struct {
	Error string
}

// handleLogin issues a session for the posted user_id.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", loginView{Error: "Yêu cầu không hợp lệ"})
		return
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(r.PostForm.Get("user_id")), 10, 64)
	if err != nil || uid <= 0 {
		s.render(w, r, http.StatusBadRequest, "login.html", loginView{Error: "Mã người dùng không hợp lệ"})
		return
	}
	if err := s.sessions.Issue(w, uid); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to issue session", log.FieldError, err)
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "User logged in", log.FieldUserID, uid)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
