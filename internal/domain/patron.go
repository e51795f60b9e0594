package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxLibraryCardIDLength = 50
	MaxEmailLength         = 255
	MaxPhoneLength         = 32
)

// MembershipStatus is the closed set of patron membership states.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "Active"
	MembershipInactive  MembershipStatus = "Inactive"
	MembershipSuspended MembershipStatus = "Suspended"
)

// Valid reports whether s is a known membership status.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipInactive, MembershipSuspended:
		return true
	}
	return false
}

// Patron is a registered library user.
type Patron struct {
	ID               uuid.UUID        `json:"id"                      db:"id"`
	LibraryCardID    string           `json:"library_card_id"         db:"library_card_id"`
	FirstName        string           `json:"first_name"              db:"first_name"`
	LastName         string           `json:"last_name"               db:"last_name"`
	Email            string           `json:"email"                   db:"email"`
	PhoneNumber      *string          `json:"phone_number,omitempty"  db:"phone_number"`
	Address          *string          `json:"address,omitempty"       db:"address"`
	DateOfBirth      *time.Time       `json:"date_of_birth,omitempty" db:"date_of_birth"`
	RegistrationDate time.Time        `json:"registration_date"       db:"registration_date"`
	MembershipStatus MembershipStatus `json:"membership_status"       db:"membership_status"`
}

// NewPatron builds a patron with an explicit initial membership status.
func NewPatron(cardID, firstName, lastName, email string, status MembershipStatus, now time.Time) Patron {
	return Patron{
		ID:               uuid.New(),
		LibraryCardID:    cardID,
		FirstName:        firstName,
		LastName:         lastName,
		Email:            email,
		RegistrationDate: now.UTC(),
		MembershipStatus: status,
	}
}

// CanBorrow reports whether the patron may check books out.
func (p Patron) CanBorrow() bool {
	return p.MembershipStatus == MembershipActive
}
