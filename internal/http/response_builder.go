package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"conti/internal/core"
	"conti/internal/middleware/trace"
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

// Write sends the response. An encoding failure after the header has gone
// out can only be logged.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates a response builder for an error message.
func ErrorResponse(r *http.Request, statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: message, RequestID: trace.GetRequestID(r.Context())})
}

func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, message)
}

func UnauthorizedError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusUnauthorized, "authentication required").
		Header("WWW-Authenticate", `Bearer realm="conti"`)
}

func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, "internal error")
}

// statusFor maps an error kind to its status code and client message.
// Validation messages are passed through; everything else gets a fixed
// text so root causes stay in the logs.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrDuplicateUser):
		return http.StatusConflict, core.ErrDuplicateUser.Error()
	case errors.Is(err, core.ErrAuthFailure):
		return http.StatusUnauthorized, core.ErrAuthFailure.Error()
	case errors.Is(err, core.ErrNotSupported):
		return http.StatusNotImplemented, "custom splits are not yet supported"
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidRecord):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// ErrorFor builds the response for an error returned by the ledger service.
func ErrorFor(r *http.Request, err error) *JSONResponseBuilder {
	code, msg := statusFor(err)
	return ErrorResponse(r, code, msg)
}
