package guard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booktracker/internal/domain"
	"booktracker/internal/storage/memory"
)

func newGuard(st *memory.Store) *Guard {
	return New(st.Books(), st.Authors(), st.Genres(), st.Patrons(), st.Borrowings())
}

func seedAuthor(t *testing.T, st *memory.Store) domain.Author {
	t.Helper()
	a := domain.Author{ID: uuid.New(), FirstName: "Ursula", LastName: "Le Guin", CreatedAt: time.Now()}
	require.NoError(t, st.Authors().Create(context.Background(), &a))
	return a
}

func TestCheckNewBook_Valid(t *testing.T) {
	st := memory.NewStore()
	g := newGuard(st)
	a := seedAuthor(t, st)

	b := domain.NewBook("9780441478125", "The Left Hand of Darkness", 3, time.Now())
	ids, err := g.CheckNewBook(context.Background(), &b, []uuid.UUID{a.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, ids)
}

func TestCheckNewBook_CollectsEveryProblem(t *testing.T) {
	st := memory.NewStore()
	g := newGuard(st)
	missingGenre := uuid.New()
	missingA, missingB := uuid.New(), uuid.New()

	b := domain.NewBook("", "", 0, time.Now())
	b.GenreID = &missingGenre

	_, err := g.CheckNewBook(context.Background(), &b, []uuid.UUID{missingA, missingB, missingA})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, errors.Is(err, domain.ErrDuplicateKey))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := verr.Fields()
	assert.Contains(t, fields, "isbn")
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "total_copies")
	assert.Contains(t, fields, "genre_id")
	require.Len(t, fields["author_ids"], 2)
	assert.Contains(t, fields["author_ids"][0], missingA.String())
	assert.Contains(t, fields["author_ids"][1], missingB.String())
}

func TestCheckNewBook_DuplicateISBN(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := newGuard(st)

	first := domain.NewBook("9780000000001", "First", 1, time.Now())
	require.NoError(t, st.Books().Create(ctx, &first))

	second := domain.NewBook("9780000000001", "Second", 1, time.Now())
	_, err := g.CheckNewBook(ctx, &second, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckNewBook_FieldLengths(t *testing.T) {
	g := newGuard(memory.NewStore())
	b := domain.NewBook("97800000000012", strings.Repeat("t", domain.MaxTitleLength+1), 1, time.Now())
	pages := 0
	b.NumberOfPages = &pages

	_, err := g.CheckNewBook(context.Background(), &b, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
}

func TestCheckNewBook_RangeLimits(t *testing.T) {
	g := newGuard(memory.NewStore())
	b := domain.NewBook("9780000000003", "Too Many", 1, time.Now())
	b.TotalCopies = domain.MaxCopies + 1
	b.AvailableCopies = 0
	pages := domain.MaxPages + 1
	b.NumberOfPages = &pages

	_, err := g.CheckNewBook(context.Background(), &b, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "total_copies")
	assert.Contains(t, verr.Fields(), "number_of_pages")

	b.TotalCopies = domain.MaxCopies
	pages = domain.MaxPages
	_, err = g.CheckNewBook(context.Background(), &b, nil)
	assert.NoError(t, err)
}

func TestCheckNewGenre_NameUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := newGuard(st)

	fantasy := domain.Genre{ID: uuid.New(), Name: "Fantasy"}
	require.NoError(t, g.CheckNewGenre(ctx, &fantasy))
	require.NoError(t, st.Genres().Create(ctx, &fantasy))

	again := domain.Genre{ID: uuid.New(), Name: "fantasy"}
	assert.ErrorIs(t, g.CheckNewGenre(ctx, &again), domain.ErrDuplicateKey)

	empty := domain.Genre{ID: uuid.New()}
	assert.ErrorIs(t, g.CheckNewGenre(ctx, &empty), domain.ErrValidation)
}

func TestCheckNewAuthor(t *testing.T) {
	g := newGuard(memory.NewStore())
	assert.NoError(t, g.CheckNewAuthor(&domain.Author{FirstName: "Ada", LastName: "Palmer"}))

	err := g.CheckNewAuthor(&domain.Author{FirstName: " ", LastName: strings.Repeat("x", 101)})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
}

func TestCheckNewPatron(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := newGuard(st)

	existing := domain.NewPatron("CARD-1", "Ann", "Lee", "ann@example.com", domain.MembershipActive, time.Now())
	require.NoError(t, st.Patrons().Create(ctx, &existing))

	tests := []struct {
		name      string
		patron    domain.Patron
		wantField string
		wantDup   bool
	}{
		{
			name:   "valid",
			patron: domain.NewPatron("CARD-2", "Bo", "Kim", "bo@example.com", domain.MembershipActive, time.Now()),
		},
		{
			name:      "duplicate card",
			patron:    domain.NewPatron("CARD-1", "Bo", "Kim", "bo@example.com", domain.MembershipActive, time.Now()),
			wantField: "library_card_id",
			wantDup:   true,
		},
		{
			name:      "duplicate email",
			patron:    domain.NewPatron("CARD-3", "Bo", "Kim", "ann@example.com", domain.MembershipActive, time.Now()),
			wantField: "email",
			wantDup:   true,
		},
		{
			name:      "malformed email",
			patron:    domain.NewPatron("CARD-4", "Bo", "Kim", "not-an-email", domain.MembershipActive, time.Now()),
			wantField: "email",
		},
		{
			name:      "unknown status",
			patron:    domain.NewPatron("CARD-5", "Bo", "Kim", "bo5@example.com", "Banned", time.Now()),
			wantField: "membership_status",
		},
	}

	longPhone := domain.NewPatron("CARD-6", "Bo", "Kim", "bo6@example.com", domain.MembershipActive, time.Now())
	phone := strings.Repeat("5", domain.MaxPhoneLength+8)
	longPhone.PhoneNumber = &phone
	tests = append(tests, struct {
		name      string
		patron    domain.Patron
		wantField string
		wantDup   bool
	}{name: "phone too long", patron: longPhone, wantField: "phone_number"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CheckNewPatron(ctx, &tt.patron)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.wantField)
			assert.Equal(t, tt.wantDup, errors.Is(err, domain.ErrDuplicateKey))
		})
	}
}

func TestCheckDeletion_HistoryBlocks(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := newGuard(st)

	b := domain.NewBook("9780000000002", "Kindred", 1, time.Now())
	require.NoError(t, st.Books().Create(ctx, &b))
	p := domain.NewPatron("CARD-9", "Octavia", "Butler", "ob@example.com", domain.MembershipActive, time.Now())
	require.NoError(t, st.Patrons().Create(ctx, &p))

	require.NoError(t, g.CheckBookDeletion(ctx, b.ID))
	require.NoError(t, g.CheckPatronDeletion(ctx, p.ID))

	rec := domain.NewBorrowingRecord(b.ID, p.ID, time.Now(), 14*24*time.Hour)
	require.NoError(t, st.Borrowings().Create(ctx, &rec))

	assert.ErrorIs(t, g.CheckBookDeletion(ctx, b.ID), domain.ErrHasBorrowingHistory)
	assert.ErrorIs(t, g.CheckPatronDeletion(ctx, p.ID), domain.ErrHasBorrowingHistory)
}

func TestDedupe(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{a, b}, Dedupe([]uuid.UUID{a, b, a, b, a}))
	assert.Nil(t, Dedupe(nil))
}
