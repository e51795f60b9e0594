// internal/patron/service.go
package patron

import (
	"context"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// Service defines the interface for the patron service.
type Service interface {
	RegisterPatron(ctx context.Context, in RegisterInput) (*domain.Patron, error)
	GetPatron(ctx context.Context, id uuid.UUID) (*domain.Patron, error)
	ListPatrons(ctx context.Context, limit, offset int) ([]domain.Patron, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error)
	DeletePatron(ctx context.Context, id uuid.UUID) error
}
