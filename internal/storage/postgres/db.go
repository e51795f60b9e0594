// Package postgres implements the storage contracts on PostgreSQL through sqlx and
// lib/pq. Repositories pick up the transaction carried by the context (see TxManager),
// so a service composes several repository calls into one atomic unit.
package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"booktracker/internal/config"
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Store bundles the repositories of one database.
type Store struct {
	db *sqlx.DB
	tx *TxManager
}

// NewStore wraps an open database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, tx: NewTxManager(db)}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

// Books returns the book repository.
func (s *Store) Books() *BookRepo { return &BookRepo{db: s.db} }

// Authors returns the author repository.
func (s *Store) Authors() *AuthorRepo { return &AuthorRepo{db: s.db} }

// Genres returns the genre repository.
func (s *Store) Genres() *GenreRepo { return &GenreRepo{db: s.db} }

// Patrons returns the patron repository.
func (s *Store) Patrons() *PatronRepo { return &PatronRepo{db: s.db} }

// Borrowings returns the borrowing record repository.
func (s *Store) Borrowings() *BorrowingRepo { return &BorrowingRepo{db: s.db} }

// Events returns the lending event log.
func (s *Store) Events() *EventStore { return NewEventStore(s.db) }

// Consistency counts books whose copy counts break 0 <= available <= total. The
// table constraint makes this zero unless the constraint was dropped.
func (s *Store) Consistency(ctx context.Context) (int, error) {
	var n int
	err := QuerierFromCtx(ctx, s.db).GetContext(ctx, &n, `
		SELECT COUNT(*) FROM books
		WHERE available_copies < 0 OR available_copies > total_copies OR total_copies < 1`)
	if err != nil {
		return 0, wrap(err, "count inconsistent books")
	}
	return n, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
