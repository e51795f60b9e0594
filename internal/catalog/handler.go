// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"booktracker/internal/domain"
	"booktracker/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.listBooks)
		r.Post("/", h.createBook)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getBook)
			r.Put("/", h.updateBook)
			r.Delete("/", h.deleteBook)
			r.Post("/copies", h.adjustCopies)
		})
	})
	r.Route("/authors", func(r chi.Router) {
		r.Get("/", h.listAuthors)
		r.Post("/", h.createAuthor)
		r.Get("/{id}", h.getAuthor)
		r.Delete("/{id}", h.deleteAuthor)
	})
	r.Route("/genres", func(r chi.Router) {
		r.Get("/", h.listGenres)
		r.Post("/", h.createGenre)
		r.Delete("/{id}", h.deleteGenre)
	})
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}

	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, book)
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	f := domain.BookFilter{
		TitleContains: r.URL.Query().Get("title"),
		Limit:         limit,
		Offset:        offset,
	}
	if v := r.URL.Query().Get("genre_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			web.Error(w, r, domain.NewValidationError("genre_id", "must be a UUID"))
			return
		}
		f.GenreID = &id
	}

	books, err := h.service.ListBooks(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, books)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, book)
}

func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req UpdateBookInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, book)
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustCopies(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req struct {
		Delta int `json:"delta"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.AdjustCopies(r.Context(), id, req.Delta)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, book)
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	var req CreateAuthorInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, author)
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := web.Page(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	authors, err := h.service.ListAuthors(r.Context(), limit, offset)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, authors)
}

func (h *Handler) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, author)
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createGenre(w http.ResponseWriter, r *http.Request) {
	var req CreateGenreInput
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	genre, err := h.service.CreateGenre(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, genre)
}

func (h *Handler) listGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.service.ListGenres(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, genres)
}

func (h *Handler) deleteGenre(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.service.DeleteGenre(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
