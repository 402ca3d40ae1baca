// Package auth issues and verifies the signed session cookie that carries
// the logged-in user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie.
const CookieName = "chitieu_session"

var ErrNoSession = errors.New("no valid session")

type contextKey struct{}

// Manager signs session tokens with HS256.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration, secureCookie bool) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, secure: secureCookie, now: time.Now}
}

// Token returns a signed token for userID.
func (m *Manager) Token(userID int64) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return s, nil
}

// Parse verifies a token and returns its user id.
func (m *Manager) Parse(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrNoSession, claims.Subject)
	}
	return id, nil
}

// Issue sets the session cookie for userID.
func (m *Manager) Issue(w http.ResponseWriter, userID int64) error {
	token, err := m.Token(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// UserID reads the session from r.
func (m *Manager) UserID(r *http.Request) (int64, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return 0, ErrNoSession
	}
	return m.Parse(c.Value)
}

// Middleware stores the session user, when there is one, in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := m.UserID(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserFromContext returns the logged-in user id.
func UserFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKey{}).(int64)
	return id, ok
}
