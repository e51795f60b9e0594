package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"booktracker/internal/domain"
	"booktracker/internal/web"
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// setupStore starts one PostgreSQL container per test run, applies the embedded
// migrations and returns a store over freshly truncated tables.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres suite skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	once.Do(func() {
		sharedDSN, initErr = startContainerAndMigrate()
	})
	require.NoError(t, initErr, "setup test database")

	db, err := sqlx.Open("postgres", sharedDSN)
	require.NoError(t, err)
	db.SetMaxOpenConns(20)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`TRUNCATE lending_events, borrowing_records, book_authors, books, authors, genres, patrons`)
	require.NoError(t, err)

	return NewStore(db)
}

func startContainerAndMigrate() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booktracker",
				"POSTGRES_PASSWORD": "booktracker",
				"POSTGRES_DB":       "booktracker",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://booktracker:booktracker@%s:%s/booktracker?sslmode=disable", host, port.Port())
	if err := MigrateUp(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

func seedBook(t *testing.T, s *Store, isbn string, copies int) domain.Book {
	t.Helper()
	b := domain.NewBook(isbn, "Book "+isbn, copies, time.Now())
	require.NoError(t, s.Books().Create(context.Background(), &b))
	return b
}

func seedPatron(t *testing.T, s *Store, card string) domain.Patron {
	t.Helper()
	p := domain.NewPatron(card, "Ada", "Lovelace", card+"@example.com", domain.MembershipActive, time.Now())
	require.NoError(t, s.Patrons().Create(context.Background(), &p))
	return p
}

func TestBookRepo_CreateAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	g := domain.Genre{ID: uuid.New(), Name: "Fiction", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Genres().Create(ctx, &g))

	b := domain.NewBook("9780000000001", "Dune", 3, time.Now())
	b.GenreID = &g.ID
	year := 1965
	b.PublicationYear = &year
	require.NoError(t, s.Books().Create(ctx, &b))

	got, err := s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 3, got.AvailableCopies)
	require.NotNil(t, got.GenreID)
	assert.Equal(t, g.ID, *got.GenreID)
	require.NotNil(t, got.PublicationYear)
	assert.Equal(t, 1965, *got.PublicationYear)

	_, err = s.Books().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookRepo_DuplicateISBNMapsToDuplicateKey(t *testing.T) {
	s := setupStore(t)
	seedBook(t, s, "9780000000002", 1)

	dup := domain.NewBook("9780000000002", "Other", 1, time.Now())
	err := s.Books().Create(context.Background(), &dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestBookRepo_ListFiltersAndPaginates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedBook(t, s, fmt.Sprintf("978000000010%d", i), 1)
	}

	all, err := s.Books().List(ctx, domain.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := s.Books().List(ctx, domain.BookFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)

	filtered, err := s.Books().List(ctx, domain.BookFilter{TitleContains: "0103"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "9780000000103", filtered[0].ISBN)
}

func TestBookRepo_UpdateLeavesCopiesAlone(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000003", 2)

	b.Title = "Renamed"
	b.TotalCopies = 99
	require.NoError(t, s.Books().Update(ctx, &b))

	got, err := s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 2, got.TotalCopies)

	missing := domain.NewBook("9780000000004", "Ghost", 1, time.Now())
	assert.ErrorIs(t, s.Books().Update(ctx, &missing), domain.ErrNotFound)
}

func TestBookRepo_CopyCounters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000005", 1)

	_, err := s.Books().IncrementAvailable(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrCopiesExceeded)

	got, err := s.Books().DecrementAvailable(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)

	_, err = s.Books().DecrementAvailable(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)

	_, err = s.Books().DecrementAvailable(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Books().AdjustCopies(ctx, b.ID, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err = s.Books().AdjustCopies(ctx, b.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalCopies)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestBookRepo_ConcurrentDecrementNeverOversells(t *testing.T) {
	s := setupStore(t)
	b := seedBook(t, s, "9780000000006", 3)

	var wg sync.WaitGroup
	var ok, unavailable atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Books().DecrementAvailable(context.Background(), b.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrBookUnavailable):
				unavailable.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(7), unavailable.Load())

	got, err := s.Books().GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)

	broken, err := s.Consistency(context.Background())
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestBookRepo_AuthorLinksCascade(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000007", 1)

	a1 := domain.Author{ID: uuid.New(), FirstName: "Terry", LastName: "Pratchett", CreatedAt: time.Now().UTC()}
	a2 := domain.Author{ID: uuid.New(), FirstName: "Neil", LastName: "Gaiman", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Authors().Create(ctx, &a1))
	require.NoError(t, s.Authors().Create(ctx, &a2))

	require.NoError(t, s.Books().LinkAuthors(ctx, b.ID, []uuid.UUID{a1.ID, a2.ID, a1.ID}))

	byBook, err := s.Books().AuthorsOf(ctx, []uuid.UUID{b.ID})
	require.NoError(t, err)
	require.Len(t, byBook[b.ID], 2)
	assert.Equal(t, "Gaiman", byBook[b.ID][0].LastName)

	existing, err := s.Authors().ExistingIDs(ctx, []uuid.UUID{a1.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1.ID}, existing)

	require.NoError(t, s.Authors().Delete(ctx, a1.ID))
	n, err := s.Books().CountLinks(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Books().Delete(ctx, b.ID))
	n, err = s.Books().CountLinks(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGenreRepo_DeleteClearsBookReference(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	g := domain.Genre{ID: uuid.New(), Name: "Poetry", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Genres().Create(ctx, &g))

	exists, err := s.Genres().ExistsByName(ctx, "POETRY")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := domain.Genre{ID: uuid.New(), Name: "poetry", CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, s.Genres().Create(ctx, &dup), domain.ErrDuplicateKey)

	b := domain.NewBook("9780000000008", "Odes", 1, time.Now())
	b.GenreID = &g.ID
	require.NoError(t, s.Books().Create(ctx, &b))

	require.NoError(t, s.Genres().Delete(ctx, g.ID))
	got, err := s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GenreID)

	assert.ErrorIs(t, s.Genres().Delete(ctx, g.ID), domain.ErrNotFound)
}

func TestPatronRepo_UniquenessAndStatus(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	p := seedPatron(t, s, "CARD-1")

	sameCard := domain.NewPatron("CARD-1", "B", "B", "other@example.com", domain.MembershipActive, time.Now())
	assert.ErrorIs(t, s.Patrons().Create(ctx, &sameCard), domain.ErrDuplicateKey)

	sameEmail := domain.NewPatron("CARD-2", "B", "B", "CARD-1@EXAMPLE.COM", domain.MembershipActive, time.Now())
	assert.ErrorIs(t, s.Patrons().Create(ctx, &sameEmail), domain.ErrDuplicateKey)

	got, err := s.Patrons().UpdateStatus(ctx, p.ID, domain.MembershipSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipSuspended, got.MembershipStatus)

	_, err = s.Patrons().UpdateStatus(ctx, uuid.New(), domain.MembershipActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteRestrictedByBorrowingHistory(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000009", 1)
	p := seedPatron(t, s, "CARD-3")

	rec := domain.NewBorrowingRecord(b.ID, p.ID, time.Now(), 14*24*time.Hour)
	require.NoError(t, s.Borrowings().Create(ctx, &rec))

	assert.ErrorIs(t, s.Books().Delete(ctx, b.ID), domain.ErrHasBorrowingHistory)
	assert.ErrorIs(t, s.Patrons().Delete(ctx, p.ID), domain.ErrHasBorrowingHistory)
}

func TestBorrowingRepo_VersionedUpdate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000010", 1)
	p := seedPatron(t, s, "CARD-4")

	rec := domain.NewBorrowingRecord(b.ID, p.ID, time.Now().Add(-20*24*time.Hour), 14*24*time.Hour)
	require.NoError(t, s.Borrowings().Create(ctx, &rec))

	overdue, err := s.Borrowings().ListOpenDueBefore(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	returned, err := rec.Transition(domain.StatusReturned)
	require.NoError(t, err)
	now := time.Now().UTC()
	fine := domain.Cents(150)
	returned.ReturnDate = &now
	returned.Fine = &fine
	require.NoError(t, s.Borrowings().Update(ctx, &returned, rec.Version))

	got, err := s.Borrowings().GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.Fine)
	assert.Equal(t, domain.Cents(150), *got.Fine)

	err = s.Borrowings().Update(ctx, &returned, rec.Version)
	assert.ErrorIs(t, err, domain.ErrAlreadyReturned)

	records, err := s.Borrowings().ListByPatron(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	n, err := s.Borrowings().CountByBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := uuid.New()

	events := []domain.LendingEvent{{EventType: domain.EventBookCheckedOut, Payload: []byte(`{"book_id":"x"}`)}}
	require.NoError(t, s.Events().Append(ctx, id, domain.AggregateBorrowingRecord, 0, events))

	err := s.Events().Append(ctx, id, domain.AggregateBorrowingRecord, 0, events)
	assert.ErrorIs(t, err, domain.ErrTransient)

	history, err := s.Events().Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Version)
	assert.JSONEq(t, `{"book_id":"x"}`, string(history[0].Payload))
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	b := seedBook(t, s, "9780000000011", 2)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Books().DecrementAvailable(ctx, b.ID); err != nil {
			return err
		}
		return s.RunInTx(ctx, func(ctx context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Books().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), domain.ErrTransient)
	assert.True(t, domain.IsRetryable(mapError(fmt.Errorf("query: %w", context.DeadlineExceeded))))

	plain := errors.New("plain")
	assert.Equal(t, plain, mapError(plain))
}

func TestOpen_PostgresDriverRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), "postgres")
}

func TestMapError_OutOfRangeValuesAreValidationFailures(t *testing.T) {
	for _, code := range []pq.ErrorCode{"22001", "22003"} {
		t.Run(string(code), func(t *testing.T) {
			err := wrap(&pq.Error{Code: code, Message: "value too long"}, "insert patron")
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.False(t, domain.IsRetryable(err))

			status, body := web.Classify(err)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_FAILED", body.Code)
		})
	}
}
