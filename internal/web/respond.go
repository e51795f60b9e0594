// Package web holds the HTTP plumbing shared by the module handlers: JSON
// responses, the mapping from core error kinds to status codes, and middleware.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"booktracker/internal/domain"
)

// ErrorBody is the uniform error response.
type ErrorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// RetryAfterSeconds is advertised on 503 responses caused by transient storage failures.
const RetryAfterSeconds = 1

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// Error maps err to a status code and writes the uniform error body. Unknown errors
// are logged and reported as 500 without details.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, body := Classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	JSON(w, status, body)
}

// Classify returns the status code and response body for err.
func Classify(err error) (int, ErrorBody) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		code := "VALIDATION_FAILED"
		if errors.Is(err, domain.ErrDuplicateKey) {
			status = http.StatusConflict
			code = "DUPLICATE_KEY"
		}
		return status, ErrorBody{Code: code, Message: "one or more fields are invalid", Errors: verr.Fields()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorBody{Code: "VALIDATION_FAILED", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicateKey):
		return http.StatusConflict, ErrorBody{Code: "DUPLICATE_KEY", Message: err.Error()}
	case errors.Is(err, domain.ErrHasBorrowingHistory):
		return http.StatusConflict, ErrorBody{Code: "HAS_BORROWING_HISTORY", Message: err.Error()}
	case errors.Is(err, domain.ErrBookUnavailable):
		return http.StatusConflict, ErrorBody{Code: "BOOK_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, domain.ErrAlreadyReturned):
		return http.StatusConflict, ErrorBody{Code: "ALREADY_RETURNED", Message: err.Error()}
	case errors.Is(err, domain.ErrPatronIneligible):
		return http.StatusForbidden, ErrorBody{Code: "PATRON_INELIGIBLE", Message: err.Error()}
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, ErrorBody{Code: "TRANSIENT_FAILURE", Message: "storage temporarily unavailable, retry the request"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "internal error"}
	}
}
