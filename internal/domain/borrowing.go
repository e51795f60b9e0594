package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BorrowingStatus is the lifecycle state of a BorrowingRecord.
//
// Borrowed, Returned and Lost are persisted. Overdue is never stored: it is what a
// Borrowed record looks like once its due date has passed (see EffectiveStatus).
type BorrowingStatus string

const (
	StatusBorrowed BorrowingStatus = "Borrowed"
	StatusReturned BorrowingStatus = "Returned"
	StatusLost     BorrowingStatus = "Lost"
	StatusOverdue  BorrowingStatus = "Overdue"
)

// transitions lists the allowed persisted transitions. A status missing from the
// map, or mapped to an empty set, is terminal.
var transitions = map[BorrowingStatus][]BorrowingStatus{
	StatusBorrowed: {StatusReturned, StatusLost},
	StatusReturned: nil,
	StatusLost:     nil,
}

// Valid reports whether s may be persisted.
func (s BorrowingStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s BorrowingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether the table allows s -> to. Overdue is folded into
// Borrowed before the lookup.
func (s BorrowingStatus) CanTransitionTo(to BorrowingStatus) bool {
	if s == StatusOverdue {
		s = StatusBorrowed
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BorrowingRecord ties one copy of a book to one patron for one loan.
type BorrowingRecord struct {
	ID            uuid.UUID       `json:"id"                        db:"id"`
	BookID        uuid.UUID       `json:"book_id"                   db:"book_id"`
	PatronID      uuid.UUID       `json:"patron_id"                 db:"patron_id"`
	CheckoutDate  time.Time       `json:"checkout_date"             db:"checkout_date"`
	DueDate       time.Time       `json:"due_date"                  db:"due_date"`
	ReturnDate    *time.Time      `json:"return_date,omitempty"     db:"return_date"`
	Status        BorrowingStatus `json:"status"                    db:"status"`
	Fine          *Money          `json:"fine_amount,omitempty"     db:"fine_cents"`
	FineSettledAt *time.Time      `json:"fine_settled_at,omitempty" db:"fine_settled_at"`
	Notes         *string         `json:"notes,omitempty"           db:"notes"`
	Version       int             `json:"version"                   db:"version"`
}

// NewBorrowingRecord opens a loan at checkout time with the due date derived from the
// loan period.
func NewBorrowingRecord(bookID, patronID uuid.UUID, checkout time.Time, loanPeriod time.Duration) BorrowingRecord {
	checkout = checkout.UTC()
	return BorrowingRecord{
		ID:           uuid.New(),
		BookID:       bookID,
		PatronID:     patronID,
		CheckoutDate: checkout,
		DueDate:      checkout.Add(loanPeriod),
		Status:       StatusBorrowed,
		Version:      1,
	}
}

// EffectiveStatus returns Overdue for a Borrowed record whose due date has passed at now.
func (r BorrowingRecord) EffectiveStatus(now time.Time) BorrowingStatus {
	if r.Status == StatusBorrowed && now.After(r.DueDate) {
		return StatusOverdue
	}
	return r.Status
}

// OutstandingFine returns the fine still owed, or zero.
func (r BorrowingRecord) OutstandingFine() Money {
	if r.Fine == nil || r.FineSettledAt != nil {
		return 0
	}
	return *r.Fine
}

// Transition checks the transition table and returns the record moved to status to.
// A terminal source yields ErrAlreadyReturned.
func (r BorrowingRecord) Transition(to BorrowingStatus) (BorrowingRecord, error) {
	if r.Status.Terminal() {
		return r, fmt.Errorf("record %s is %s: %w", r.ID, r.Status, ErrAlreadyReturned)
	}
	if !r.Status.CanTransitionTo(to) {
		return r, fmt.Errorf("record %s: %s -> %s not allowed: %w", r.ID, r.Status, to, ErrValidation)
	}
	r.Status = to
	r.Version++
	return r, nil
}
