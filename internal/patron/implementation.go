// internal/patron/implementation.go
package patron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
	"booktracker/internal/guard"
)

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type patronRepo interface {
	Create(ctx context.Context, p *domain.Patron) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Patron, error)
	List(ctx context.Context, limit, offset int) ([]domain.Patron, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// service implements the Service interface.
type service struct {
	tx      txManager
	patrons patronRepo
	guard   *guard.Guard
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates a new patron service instance.
func NewService(logger *slog.Logger, tx txManager, patrons patronRepo, g *guard.Guard) Service {
	return &service{
		tx:      tx,
		patrons: patrons,
		guard:   g,
		log:     logger.With("service", "patron"),
		now:     time.Now,
	}
}

// RegisterPatron creates a new patron after checking every field and the uniqueness
// of the library card and email.
func (s *service) RegisterPatron(ctx context.Context, in RegisterInput) (*domain.Patron, error) {
	status := in.MembershipStatus
	if status == "" {
		status = domain.MembershipActive
	}
	p := domain.NewPatron(
		strings.TrimSpace(in.LibraryCardID),
		strings.TrimSpace(in.FirstName),
		strings.TrimSpace(in.LastName),
		strings.TrimSpace(in.Email),
		status,
		s.now(),
	)
	p.PhoneNumber = in.PhoneNumber
	p.Address = in.Address
	p.DateOfBirth = in.DateOfBirth

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.CheckNewPatron(ctx, &p); err != nil {
			return err
		}
		if err := s.patrons.Create(ctx, &p); err != nil {
			return fmt.Errorf("create patron: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "patron registered",
		slog.String("patron_id", p.ID.String()),
		slog.String("library_card_id", p.LibraryCardID),
	)
	return &p, nil
}

// GetPatron retrieves a patron by ID.
func (s *service) GetPatron(ctx context.Context, id uuid.UUID) (*domain.Patron, error) {
	return s.patrons.GetByID(ctx, id)
}

func (s *service) ListPatrons(ctx context.Context, limit, offset int) ([]domain.Patron, error) {
	return s.patrons.List(ctx, limit, offset)
}

// ChangeStatus sets the membership status of a patron. Open loans are not affected;
// only new checkouts look at the status.
func (s *service) ChangeStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("membership_status", fmt.Sprintf("unknown membership status %q", status))
	}
	p, err := s.patrons.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "membership status changed",
		slog.String("patron_id", id.String()),
		slog.String("status", string(status)),
	)
	return p, nil
}

// DeletePatron removes a patron that has never borrowed a book.
func (s *service) DeletePatron(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.guard.CheckPatronDeletion(ctx, id); err != nil {
			return err
		}
		return s.patrons.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "patron deleted", slog.String("patron_id", id.String()))
	return nil
}
