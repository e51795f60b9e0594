package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func TestNewBorrowingRecord_DueDateFromLoanPeriod(t *testing.T) {
	r := NewBorrowingRecord(uuid.New(), uuid.New(), day0, 14*24*time.Hour)

	assert.Equal(t, StatusBorrowed, r.Status)
	assert.Equal(t, day0.AddDate(0, 0, 14), r.DueDate)
	assert.Nil(t, r.ReturnDate)
	assert.Nil(t, r.Fine)
	assert.Equal(t, 1, r.Version)
}

func TestEffectiveStatus(t *testing.T) {
	r := NewBorrowingRecord(uuid.New(), uuid.New(), day0, 14*24*time.Hour)

	assert.Equal(t, StatusBorrowed, r.EffectiveStatus(day0.AddDate(0, 0, 14)))
	assert.Equal(t, StatusOverdue, r.EffectiveStatus(day0.AddDate(0, 0, 15)))

	returned := day0.AddDate(0, 0, 20)
	r.Status = StatusReturned
	r.ReturnDate = &returned
	assert.Equal(t, StatusReturned, r.EffectiveStatus(day0.AddDate(0, 0, 30)))
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to BorrowingStatus
		allowed  bool
	}{
		{StatusBorrowed, StatusReturned, true},
		{StatusBorrowed, StatusLost, true},
		{StatusOverdue, StatusReturned, true},
		{StatusOverdue, StatusLost, true},
		{StatusReturned, StatusLost, false},
		{StatusReturned, StatusReturned, false},
		{StatusLost, StatusReturned, false},
		{StatusBorrowed, StatusBorrowed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusReturned.Terminal())
	assert.True(t, StatusLost.Terminal())
	assert.False(t, StatusBorrowed.Terminal())
	assert.False(t, StatusOverdue.Valid(), "overdue is derived and never persisted")
}

func TestTransition_TerminalIsAlreadyReturned(t *testing.T) {
	r := NewBorrowingRecord(uuid.New(), uuid.New(), day0, time.Hour)

	returned, err := r.Transition(StatusReturned)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.Status)
	assert.Equal(t, 2, returned.Version)

	_, err = returned.Transition(StatusReturned)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	_, err = returned.Transition(StatusLost)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestTransition_DisallowedIsValidation(t *testing.T) {
	r := NewBorrowingRecord(uuid.New(), uuid.New(), day0, time.Hour)

	_, err := r.Transition(StatusBorrowed)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestOutstandingFine(t *testing.T) {
	r := NewBorrowingRecord(uuid.New(), uuid.New(), day0, time.Hour)
	assert.Equal(t, Money(0), r.OutstandingFine())

	fine := Cents(150)
	r.Fine = &fine
	assert.Equal(t, Cents(150), r.OutstandingFine())

	settled := day0
	r.FineSettledAt = &settled
	assert.Equal(t, Money(0), r.OutstandingFine())
}
