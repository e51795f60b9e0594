package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// MaxPageSize bounds the limit query parameter.
const MaxPageSize = 200

// PathID parses the UUID URL parameter name.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

// Page reads limit and offset query parameters. Missing values default to 50 and 0.
func Page(r *http.Request) (limit, offset int, err error) {
	var p domain.Problems
	limit, offset = 50, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > MaxPageSize {
			p.Add("limit", "limit must be between 1 and %d", MaxPageSize)
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			p.Add("offset", "offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, p.Err()
}
