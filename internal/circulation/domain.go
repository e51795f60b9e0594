// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// Record is a borrowing record as seen at a point in time: the stored record plus
// its effective status and the fine still owed.
type Record struct {
	domain.BorrowingRecord
	EffectiveStatus domain.BorrowingStatus `json:"effective_status"`
	OutstandingFine domain.Money           `json:"outstanding_fine"`
}

func newRecord(r domain.BorrowingRecord, now time.Time) Record {
	return Record{
		BorrowingRecord: r,
		EffectiveStatus: r.EffectiveStatus(now),
		OutstandingFine: r.OutstandingFine(),
	}
}

// CheckoutInput is the checkout request.
type CheckoutInput struct {
	BookID   uuid.UUID `json:"book_id"`
	PatronID uuid.UUID `json:"patron_id"`
	Notes    string    `json:"notes,omitempty"`
}

// BookCheckedOutEvent is appended when a copy is lent.
type BookCheckedOutEvent struct {
	RecordID uuid.UUID `json:"record_id"`
	BookID   uuid.UUID `json:"book_id"`
	PatronID uuid.UUID `json:"patron_id"`
	DueDate  time.Time `json:"due_date"`
}

// BookReturnedEvent is appended when a copy comes back.
type BookReturnedEvent struct {
	RecordID   uuid.UUID    `json:"record_id"`
	BookID     uuid.UUID    `json:"book_id"`
	ReturnDate time.Time    `json:"return_date"`
	DaysLate   int          `json:"days_late"`
	Fine       domain.Money `json:"fine"`
}

// BookMarkedLostEvent is appended when a borrowed copy is declared lost.
type BookMarkedLostEvent struct {
	RecordID uuid.UUID    `json:"record_id"`
	BookID   uuid.UUID    `json:"book_id"`
	LostAt   time.Time    `json:"lost_at"`
	Fine     domain.Money `json:"fine"`
}

// FineSettledEvent is appended when a patron pays the fine of a record.
type FineSettledEvent struct {
	RecordID  uuid.UUID    `json:"record_id"`
	Amount    domain.Money `json:"amount"`
	SettledAt time.Time    `json:"settled_at"`
}
