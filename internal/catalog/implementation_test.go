package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booktracker/internal/domain"
	"booktracker/internal/guard"
	"booktracker/internal/ledger"
	"booktracker/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(Deps{
		Tx:      st,
		Books:   st.Books(),
		Authors: st.Authors(),
		Genres:  st.Genres(),
		Guard:   guard.New(st.Books(), st.Authors(), st.Genres(), st.Patrons(), st.Borrowings()),
		Ledger:  ledger.New(logger, st.Books()),
		Logger:  logger,
		Now:     func() time.Time { return fixedNow },
	})
	return svc, st
}

func intPtr(v int) *int { return &v }

func TestCreateBook_WithAuthorsAndGenre(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	genre, err := svc.CreateGenre(ctx, CreateGenreInput{Name: "Science Fiction"})
	require.NoError(t, err)
	herbert, err := svc.CreateAuthor(ctx, CreateAuthorInput{FirstName: "Frank", LastName: "Herbert"})
	require.NoError(t, err)

	book, err := svc.CreateBook(ctx, CreateBookInput{
		ISBN:        "9780441013593",
		Title:       "Dune",
		GenreID:     &genre.ID,
		AuthorIDs:   []uuid.UUID{herbert.ID, herbert.ID},
		TotalCopies: intPtr(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)
	require.NotNil(t, book.GenreName)
	assert.Equal(t, "Science Fiction", *book.GenreName)
	assert.Equal(t, []AuthorRef{{ID: herbert.ID, FullName: "Frank Herbert"}}, book.Authors)
	assert.Equal(t, fixedNow, book.DateAdded)

	got, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book, got)
}

func TestCreateBook_DefaultsToOneCopy(t *testing.T) {
	svc, _ := newTestService(t)
	book, err := svc.CreateBook(context.Background(), CreateBookInput{ISBN: "1", Title: "Solo"})
	require.NoError(t, err)
	assert.Equal(t, 1, book.TotalCopies)
	assert.Empty(t, book.Authors)
}

func TestCreateBook_UnknownAuthorsLeaveNothingBehind(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	missing := uuid.New()

	_, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "2", Title: "Ghost", AuthorIDs: []uuid.UUID{missing}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields()["author_ids"][0], missing.String())

	books, err := st.Books().List(ctx, domain.BookFilter{})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCreateBook_DuplicateISBN(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "3", Title: "First"})
	require.NoError(t, err)
	_, err = svc.CreateBook(ctx, CreateBookInput{ISBN: "3", Title: "Second"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestListBooks_SummariesWithAuthorNames(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, err := svc.CreateAuthor(ctx, CreateAuthorInput{FirstName: "Terry", LastName: "Pratchett"})
	require.NoError(t, err)
	b, err := svc.CreateAuthor(ctx, CreateAuthorInput{FirstName: "Neil", LastName: "Gaiman"})
	require.NoError(t, err)
	_, err = svc.CreateBook(ctx, CreateBookInput{ISBN: "4", Title: "Good Omens", AuthorIDs: []uuid.UUID{a.ID, b.ID}})
	require.NoError(t, err)
	_, err = svc.CreateBook(ctx, CreateBookInput{ISBN: "5", Title: "Coraline", AuthorIDs: []uuid.UUID{b.ID}})
	require.NoError(t, err)

	list, err := svc.ListBooks(ctx, domain.BookFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Coraline", list[0].Title)
	assert.Equal(t, []string{"Neil Gaiman", "Terry Pratchett"}, list[1].Authors)

	filtered, err := svc.ListBooks(ctx, domain.BookFilter{TitleContains: "omen"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Good Omens", filtered[0].Title)
}

func TestUpdateBook_KeepsCopies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	book, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "6", Title: "Draft", TotalCopies: intPtr(2)})
	require.NoError(t, err)

	updated, err := svc.UpdateBook(ctx, book.ID, UpdateBookInput{ISBN: "6", Title: "Final"})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, 2, updated.TotalCopies)

	_, err = svc.UpdateBook(ctx, book.ID, UpdateBookInput{ISBN: "6"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.UpdateBook(ctx, uuid.New(), UpdateBookInput{ISBN: "7", Title: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteBook_RestrictedByHistory(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	book, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "8", Title: "Loaned"})
	require.NoError(t, err)
	p := domain.NewPatron("C-1", "A", "B", "a@example.com", domain.MembershipActive, fixedNow)
	require.NoError(t, st.Patrons().Create(ctx, &p))
	rec := domain.NewBorrowingRecord(book.ID, p.ID, fixedNow, time.Hour)
	require.NoError(t, st.Borrowings().Create(ctx, &rec))

	assert.ErrorIs(t, svc.DeleteBook(ctx, book.ID), domain.ErrHasBorrowingHistory)

	_, err = svc.GetBook(ctx, book.ID)
	assert.NoError(t, err)
}

func TestDeleteBook_CascadesAuthorLinks(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	a, err := svc.CreateAuthor(ctx, CreateAuthorInput{FirstName: "Italo", LastName: "Calvino"})
	require.NoError(t, err)
	book, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "9", Title: "Invisible Cities", AuthorIDs: []uuid.UUID{a.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBook(ctx, book.ID))

	n, err := st.Books().CountLinks(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.GetAuthor(ctx, a.ID)
	assert.NoError(t, err)
}

func TestDeleteGenre_BooksSurviveWithoutGenre(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	g, err := svc.CreateGenre(ctx, CreateGenreInput{Name: "Horror"})
	require.NoError(t, err)
	book, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "10", Title: "Carrie", GenreID: &g.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGenre(ctx, g.ID))

	got, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GenreID)
	assert.Nil(t, got.GenreName)
}

func TestAdjustCopies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	book, err := svc.CreateBook(ctx, CreateBookInput{ISBN: "11", Title: "Stock", TotalCopies: intPtr(2)})
	require.NoError(t, err)

	got, err := svc.AdjustCopies(ctx, book.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalCopies)
	assert.Equal(t, 5, got.AvailableCopies)

	_, err = svc.AdjustCopies(ctx, book.ID, -5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateGenre_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.CreateGenre(ctx, CreateGenreInput{Name: "Mystery"})
	require.NoError(t, err)

	_, err = svc.CreateGenre(ctx, CreateGenreInput{Name: "Mystery"})
	assert.True(t, errors.Is(err, domain.ErrDuplicateKey))
}
