// internal/circulation/handler.go
package circulation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"booktracker/internal/domain"
	"booktracker/internal/web"
)

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Routes mounts the lending endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.checkout)
		r.Get("/", h.listPatronLoans)
		r.Get("/overdue", h.listOverdue)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getLoan)
			r.Get("/history", h.history)
			r.Post("/return", h.returnBook)
			r.Post("/lost", h.markLost)
			r.Post("/settle", h.settleFine)
		})
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	var p domain.Problems
	if req.BookID == uuid.Nil {
		p.Add("book_id", "book_id is required")
	}
	if req.PatronID == uuid.Nil {
		p.Add("patron_id", "patron_id is required")
	}
	if err := p.Err(); err != nil {
		web.Error(w, r, err)
		return
	}

	rec, err := h.service.Checkout(r.Context(), req.BookID, req.PatronID, req.Notes)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listPatronLoans(w http.ResponseWriter, r *http.Request) {
	patronID, err := uuid.Parse(r.URL.Query().Get("patron_id"))
	if err != nil {
		web.Error(w, r, domain.NewValidationError("patron_id", "must be a UUID"))
		return
	}
	recs, err := h.service.ListPatronRecords(r.Context(), patronID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, recs)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			web.Error(w, r, domain.NewValidationError("as_of", "must be an RFC 3339 timestamp"))
			return
		}
		asOf = t
	}
	recs, err := h.service.ListOverdue(r.Context(), asOf)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, recs)
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	h.withRecord(w, r, h.service.GetRecord)
}

func (h *Handler) returnBook(w http.ResponseWriter, r *http.Request) {
	h.withRecord(w, r, h.service.Return)
}

func (h *Handler) markLost(w http.ResponseWriter, r *http.Request) {
	h.withRecord(w, r, h.service.MarkLost)
}

func (h *Handler) settleFine(w http.ResponseWriter, r *http.Request) {
	h.withRecord(w, r, h.service.SettleFine)
}

func (h *Handler) withRecord(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*Record, error)) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	rec, err := op(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, rec)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, events)
}
