// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// Service defines the interface for the circulation service.
type Service interface {
	Checkout(ctx context.Context, bookID, patronID uuid.UUID, notes string) (*Record, error)
	Return(ctx context.Context, recordID uuid.UUID) (*Record, error)
	MarkLost(ctx context.Context, recordID uuid.UUID) (*Record, error)
	SettleFine(ctx context.Context, recordID uuid.UUID) (*Record, error)

	GetRecord(ctx context.Context, recordID uuid.UUID) (*Record, error)
	ListPatronRecords(ctx context.Context, patronID uuid.UUID) ([]Record, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Record, error)
	History(ctx context.Context, recordID uuid.UUID) ([]domain.LendingEvent, error)

	ComputeFine(rec domain.BorrowingRecord, asOf time.Time) domain.Money
}
