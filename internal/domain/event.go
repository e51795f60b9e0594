package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lending event types appended for every borrowing record transition.
const (
	EventBookCheckedOut = "BookCheckedOut"
	EventBookReturned   = "BookReturned"
	EventBookMarkedLost = "BookMarkedLost"
	EventFineSettled    = "FineSettled"
)

// AggregateBorrowingRecord is the aggregate type of lending events.
const AggregateBorrowingRecord = "borrowing_record"

// LendingEvent is one entry of a borrowing record's append-only history.
type LendingEvent struct {
	ID            int64           `json:"id"             db:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"   db:"aggregate_id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	EventType     string          `json:"event_type"     db:"event_type"`
	Payload       json.RawMessage `json:"payload"        db:"payload"`
	Version       int             `json:"version"        db:"version"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}
