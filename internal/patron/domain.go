// internal/patron/domain.go
package patron

import (
	"time"

	"booktracker/internal/domain"
)

// RegisterInput is the register-patron request. MembershipStatus defaults to Active.
type RegisterInput struct {
	LibraryCardID    string                  `json:"library_card_id"`
	FirstName        string                  `json:"first_name"`
	LastName         string                  `json:"last_name"`
	Email            string                  `json:"email"`
	PhoneNumber      *string                 `json:"phone_number,omitempty"`
	Address          *string                 `json:"address,omitempty"`
	DateOfBirth      *time.Time              `json:"date_of_birth,omitempty"`
	MembershipStatus domain.MembershipStatus `json:"membership_status,omitempty"`
}

// ChangeStatusInput moves a patron to another membership status.
type ChangeStatusInput struct {
	MembershipStatus domain.MembershipStatus `json:"membership_status"`
}
