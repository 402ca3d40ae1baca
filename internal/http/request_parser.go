// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// date-range query parameters, path ids, and form or JSON bodies.

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chitieu/internal/daterange"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 64 << 10

// maxDays bounds the ?days= window.
const maxDays = 366

// ParseRange reads the date window from query parameters. In order of
// precedence: start+end (YYYY-MM-DD), daterange (DD/MM/YYYY - DD/MM/YYYY),
// range (preset key), days (last N days including today). fallback is the
// preset used when none is given.
func ParseRange(q url.Values, presets *daterange.Presets, now time.Time, fallback string) (daterange.Range, error) {
	loc := now.Location()

	start, end := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
	if start != "" || end != "" {
		if start == "" || end == "" {
			return daterange.Range{}, fmt.Errorf("%w: start and end must be given together", errParse)
		}
		s, err := time.ParseInLocation(time.DateOnly, start, loc)
		if err != nil {
			return daterange.Range{}, fmt.Errorf("%w: start %q", errParse, start)
		}
		e, err := time.ParseInLocation(time.DateOnly, end, loc)
		if err != nil {
			return daterange.Range{}, fmt.Errorf("%w: end %q", errParse, end)
		}
		return daterange.Between(s, e, loc)
	}

	if v := strings.TrimSpace(q.Get("daterange")); v != "" {
		return daterange.Parse(v, loc)
	}

	if key := strings.TrimSpace(q.Get("range")); key != "" {
		return presets.Resolve(key, now)
	}

	if v := strings.TrimSpace(q.Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDays {
			return daterange.Range{}, fmt.Errorf("%w: days must be between 1 and %d", errParse, maxDays)
		}
		return daterange.Between(now.AddDate(0, 0, -(n - 1)), now, loc)
	}

	return presets.Resolve(fallback, now)
}

// PathID parses the {id} path segment.
func PathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errParse, raw)
	}
	return id, nil
}

// DecodeJSONObject reads a JSON object body. Numbers stay json.Number so
// amounts are not rounded through float64 before validation.
func DecodeJSONObject(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", errParse, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errParse)
	}
	return body, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errParse, p.err)
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errParse, err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errParse, p.err)
	}
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters (except tab and newlines) and trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// wantsJSON reports whether the client asked for a JSON response. Plain
// HTML form posts do not, and get a redirect instead.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		!strings.Contains(accept, "text/html")
}
