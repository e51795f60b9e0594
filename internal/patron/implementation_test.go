package patron

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booktracker/internal/domain"
	"booktracker/internal/guard"
	"booktracker/internal/storage/memory"
)

func newTestService(t *testing.T) (Service, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	g := guard.New(st.Books(), st.Authors(), st.Genres(), st.Patrons(), st.Borrowings())
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), st, st.Patrons(), g), st
}

func TestRegisterPatron_DefaultsToActive(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.RegisterPatron(context.Background(), RegisterInput{
		LibraryCardID: " LC-100 ",
		FirstName:     "Grace",
		LastName:      "Hopper",
		Email:         "grace@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipActive, p.MembershipStatus)
	assert.Equal(t, "LC-100", p.LibraryCardID)
	assert.True(t, p.CanBorrow())
}

func TestRegisterPatron_Uniqueness(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-1", FirstName: "A", LastName: "B", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-1", FirstName: "C", LastName: "D", Email: "c@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-2", FirstName: "C", LastName: "D", Email: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	list, err := svc.ListPatrons(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegisterPatron_ExplicitStatus(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.RegisterPatron(context.Background(), RegisterInput{
		LibraryCardID:    "LC-3",
		FirstName:        "E",
		LastName:         "F",
		Email:            "e@example.com",
		MembershipStatus: domain.MembershipSuspended,
	})
	require.NoError(t, err)
	assert.False(t, p.CanBorrow())
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	p, err := svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-4", FirstName: "G", LastName: "H", Email: "g@example.com"})
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, p.ID, domain.MembershipInactive)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipInactive, updated.MembershipStatus)

	_, err = svc.ChangeStatus(ctx, p.ID, "Expelled")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ChangeStatus(ctx, uuid.New(), domain.MembershipActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletePatron(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	free, err := svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-5", FirstName: "I", LastName: "J", Email: "i@example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePatron(ctx, free.ID))
	_, err = svc.GetPatron(ctx, free.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	borrower, err := svc.RegisterPatron(ctx, RegisterInput{LibraryCardID: "LC-6", FirstName: "K", LastName: "L", Email: "k@example.com"})
	require.NoError(t, err)
	b := domain.NewBook("9781", "Loaned", 1, time.Now())
	require.NoError(t, st.Books().Create(ctx, &b))
	rec := domain.NewBorrowingRecord(b.ID, borrower.ID, time.Now(), time.Hour)
	require.NoError(t, st.Borrowings().Create(ctx, &rec))

	assert.ErrorIs(t, svc.DeletePatron(ctx, borrower.ID), domain.ErrHasBorrowingHistory)
}
