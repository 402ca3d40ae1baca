package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"chitieu/internal/core"
)

// ErrNoSession is returned by LoadPage when the server answers with the
// login page.
var ErrNoSession = errors.New("not logged in")

// RequestError is a non-2xx answer or a response body that cannot be used.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Detail)
}

// TransportError wraps a failure to reach the server at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Record is an expense as returned by the JSON API. Fields are kept
// untyped so a missing field can be told apart from a zero one.
type Record map[string]any

// Value returns field as a typed value.
func (r Record) Value(field string) (core.Value, bool) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return core.Value{}, false
	}
	v, err := core.ValueOf(raw)
	if err != nil {
		return core.Value{}, false
	}
	return v, true
}

func (r Record) ID() int64 {
	v, ok := r.Value("id")
	if !ok || v.Kind != core.KindNumber {
		return 0
	}
	return int64(v.Number)
}

// Client talks to the chitieu server the way the page's scripts do. It
// keeps the session cookie in a jar.
type Client struct {
	base *url.URL
	http *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying client. Its Jar is kept if set.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Jar:       jar,
			Timeout:   15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	return c, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

// Login opens a session for userID.
func (c *Client) Login(ctx context.Context, userID int64) error {
	form := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/login", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Detail: "login rejected"}
	}
	return nil
}

// LoadPage fetches and parses the dashboard for the given filters.
func (c *Client) LoadPage(ctx context.Context, q url.Values) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/", q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readError(resp)
	}
	doc, err := ParseDocument(resp.Body)
	if err != nil {
		return nil, &RequestError{Status: resp.StatusCode, Detail: err.Error()}
	}
	if doc.ByID("login-form") != nil {
		return nil, ErrNoSession
	}
	return doc, nil
}

// PatchField sends {"<field>": value} and returns the stored record.
func (c *Client) PatchField(ctx context.Context, key FieldKey, v core.Value) (Record, error) {
	body, err := json.Marshal(map[string]core.Value{key.Field: v})
	if err != nil {
		return nil, err
	}
	path := "/api/expenses/" + strconv.FormatInt(key.ExpenseID, 10) + "/field"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.url(path, nil), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.record(req)
}

// CreateExpense posts the creation form.
func (c *Client) CreateExpense(ctx context.Context, form url.Values) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/expenses", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.record(req)
}

func (c *Client) GetExpense(ctx context.Context, id int64) (Record, error) {
	path := "/api/expenses/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, nil), nil)
	if err != nil {
		return nil, err
	}
	return c.record(req)
}

func (c *Client) record(req *http.Request) (Record, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readError(resp)
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return nil, &RequestError{Status: resp.StatusCode, Detail: "malformed response body"}
	}
	return rec, nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		return &RequestError{Status: resp.StatusCode, Detail: payload.Detail}
	}
	return &RequestError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
}
