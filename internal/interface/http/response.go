package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Field names the offending input of a validation error.
	Field string `json:"field,omitempty"`

	// Reason names the authorization rule that failed.
	Reason string `json:"reason,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeJSONError writes an error envelope.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeError maps a handler error onto a status code. Anything that is not
// a domain error is logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	msg := domainMessage(err)
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, &APIError{Code: "validation_error", Message: msg, Field: shared.ValidationField(err)})
	case shared.IsAuthorization(err):
		writeJSONError(w, r, http.StatusForbidden, &APIError{Code: "forbidden", Message: msg, Reason: shared.AuthorizationReason(err)})
	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, &APIError{Code: "conflict", Message: msg})
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, &APIError{Code: "not_found", Message: msg})
	case shared.IsExternalService(err):
		logger.FromContext(r.Context()).Warn("upstream failure", logger.Err(err))
		writeJSONError(w, r, http.StatusBadGateway, &APIError{Code: "upstream_error", Message: "Fitness provider unavailable"})
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err), logger.Path(r.URL.Path))
		writeJSONError(w, r, http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "An unexpected error occurred"})
	}
}

func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		if de.Err != nil && shared.IsValidation(err) {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	}
	return err.Error()
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads the body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewValidationError("http", "DecodeBody", "body", "request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return shared.NewValidationError("http", "DecodeBody", "body", "request body too large")
		}
		return shared.WrapError("http", "DecodeBody", shared.ErrValidation, "malformed JSON body", err)
	}
	return nil
}

// queryInt parses an integer query parameter. A present but malformed value
// is a validation error naming the parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewValidationError("http", "ParseQuery", key, "must be an integer")
	}
	return v, nil
}

// queryLimit reads ?limit=. Absent means the default page size; anything
// given is clamped to [1,100].
func queryLimit(r *http.Request) (int, error) {
	v, err := queryInt(r, "limit", shared.DefaultPageLimit)
	if err != nil {
		return 0, err
	}
	return shared.ClampLimit(v), nil
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
