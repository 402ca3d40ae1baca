// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors onto status codes with a {"detail": "..."} body.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chitieu/internal/auth"
	"chitieu/internal/core"
	"chitieu/internal/daterange"
	"chitieu/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Detail string `json:"detail"`
}

// ErrorResponse creates a standard {"detail": message} error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Detail: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnauthorizedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "Chưa đăng nhập")
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Lỗi máy chủ")
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Quá nhiều yêu cầu, vui lòng thử lại sau")
}

// errParse marks malformed request syntax (bad JSON, bad query values).
var errParse = errors.New("malformed request")

// validationErrors are reported as 422.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrNotNumeric,
	core.ErrEmptyDescription,
	core.ErrInvalidCategory,
	core.ErrInvalidDate,
	core.ErrUnknownField,
	services.ErrInvalidPatch,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errParse), errors.Is(err, daterange.ErrInvalidRange), errors.Is(err, daterange.ErrUnknownPreset):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// ErrorFor builds the response for err. Server errors never leak their text.
func ErrorFor(err error) *JSONResponseBuilder {
	switch status := StatusFor(err); status {
	case http.StatusInternalServerError:
		return InternalServerError()
	case http.StatusUnauthorized:
		return UnauthorizedError()
	case http.StatusNotFound:
		return NotFoundError("Không tìm thấy khoản chi")
	default:
		return ErrorResponse(status, err.Error())
	}
}
