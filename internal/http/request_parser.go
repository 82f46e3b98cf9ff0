package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"conti/internal/core"
)

// maxBodyBytes bounds request bodies; records are a few hundred bytes.
const maxBodyBytes = 64 << 10

var errEmptyBody = fmt.Errorf("%w: empty request body", core.ErrInvalidInput)

// decodeJSON reads one JSON object from the request body into dst.
// Malformed or oversized bodies are reported as ErrInvalidInput.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type must be application/json", core.ErrInvalidInput)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON", core.ErrInvalidInput)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", core.ErrInvalidInput)
	}
	return nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// queryParam returns a sanitized query parameter.
func queryParam(r *http.Request, key string) string {
	return sanitizeInput(r.URL.Query().Get(key))
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
