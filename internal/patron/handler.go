// internal/patron/handler.go
package patron

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"booktracker/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the patron endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/patrons", func(r chi.Router) {
		r.Get("/", h.listPatrons)
		r.Post("/", h.registerPatron)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPatron)
			r.Delete("/", h.deletePatron)
			r.Put("/status", h.changeStatus)
		})
	})
}

func (h *Handler) registerPatron(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	p, err := h.service.RegisterPatron(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listPatrons(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	patrons, err := h.service.ListPatrons(r.Context(), limit, offset)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, patrons)
}

func (h *Handler) getPatron(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	p, err := h.service.GetPatron(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req ChangeStatusInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	p, err := h.service.ChangeStatus(r.Context(), id, req.MembershipStatus)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePatron(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.service.DeletePatron(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
