package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/config"
	"booktracker/internal/domain"
	"booktracker/internal/storage/memory"
	"booktracker/internal/storage/postgres"
)

type bookStore interface {
	Create(ctx context.Context, b *domain.Book) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	List(ctx context.Context, f domain.BookFilter) ([]domain.Book, error)
	Update(ctx context.Context, b *domain.Book) error
	Delete(ctx context.Context, id uuid.UUID) error
	LinkAuthors(ctx context.Context, bookID uuid.UUID, authorIDs []uuid.UUID) error
	AuthorsOf(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID][]domain.Author, error)
	DecrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	IncrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*domain.Book, error)
}

type authorStore interface {
	Create(ctx context.Context, a *domain.Author) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	List(ctx context.Context, limit, offset int) ([]domain.Author, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type genreStore interface {
	Create(ctx context.Context, g *domain.Genre) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Genre, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]domain.Genre, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type patronStore interface {
	Create(ctx context.Context, p *domain.Patron) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Patron, error)
	ExistsByCardID(ctx context.Context, cardID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]domain.Patron, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MembershipStatus) (*domain.Patron, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type borrowingStore interface {
	Create(ctx context.Context, rec *domain.BorrowingRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BorrowingRecord, error)
	Update(ctx context.Context, rec *domain.BorrowingRecord, expectedVersion int) error
	CountByBook(ctx context.Context, bookID uuid.UUID) (int, error)
	CountByPatron(ctx context.Context, patronID uuid.UUID) (int, error)
	ListByPatron(ctx context.Context, patronID uuid.UUID) ([]domain.BorrowingRecord, error)
	ListOpenDueBefore(ctx context.Context, t time.Time) ([]domain.BorrowingRecord, error)
}

type eventStore interface {
	Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []domain.LendingEvent) error
	Load(ctx context.Context, aggregateID uuid.UUID) ([]domain.LendingEvent, error)
}

// backend is one storage implementation seen through the contracts the services use.
type backend struct {
	runInTx     func(ctx context.Context, fn func(ctx context.Context) error) error
	books       bookStore
	authors     authorStore
	genres      genreStore
	patrons     patronStore
	borrowings  borrowingStore
	events      eventStore
	consistency func(ctx context.Context) (int, error)
	ping        func(ctx context.Context) error
	close       func() error
}

func (b *backend) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.runInTx(ctx, fn)
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig) (*backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memoryBackend(memory.NewStore()), nil
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.MigrateUp(cfg.URL); err != nil {
				return nil, err
			}
		}
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(db)
		return &backend{
			runInTx:     s.RunInTx,
			books:       s.Books(),
			authors:     s.Authors(),
			genres:      s.Genres(),
			patrons:     s.Patrons(),
			borrowings:  s.Borrowings(),
			events:      s.Events(),
			consistency: s.Consistency,
			ping:        s.Ping,
			close:       s.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func memoryBackend(s *memory.Store) *backend {
	return &backend{
		runInTx:     s.RunInTx,
		books:       s.Books(),
		authors:     s.Authors(),
		genres:      s.Genres(),
		patrons:     s.Patrons(),
		borrowings:  s.Borrowings(),
		events:      s.Events(),
		consistency: s.Consistency,
		ping:        func(context.Context) error { return nil },
		close:       func() error { return nil },
	}
}
