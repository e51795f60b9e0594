// Package ledger is the only writer of a book's available copies. Every mutation is a
// single guarded update in storage, so concurrent Reserve and Release calls on the
// same book serialize on that book and available copies never leave [0, total].
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"booktracker/internal/domain"
)

type copyStore interface {
	DecrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	IncrementAvailable(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	AdjustCopies(ctx context.Context, id uuid.UUID, delta int) (*domain.Book, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
}

// Ledger reserves and releases copies of books.
type Ledger struct {
	log    *slog.Logger
	books  copyStore
	tracer trace.Tracer
	ops    metric.Int64Counter
}

// Option configures a Ledger.
type Option func(*options)

type options struct {
	meter metric.Meter
}

// WithMeter records ledger operations on m instead of the global MeterProvider.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// New creates a Ledger over the book copy counters.
func New(logger *slog.Logger, books copyStore, opts ...Option) *Ledger {
	o := options{meter: otel.Meter("booktracker/ledger")}
	for _, opt := range opts {
		opt(&o)
	}

	var ops metric.Int64Counter = noop.Int64Counter{}
	counter, err := o.meter.Int64Counter("booktracker.ledger.operations",
		metric.WithDescription("Ledger operations by kind and outcome"))
	if err == nil {
		ops = counter
	}
	return &Ledger{
		log:    logger.With("component", "ledger"),
		books:  books,
		tracer: otel.Tracer("booktracker/ledger"),
		ops:    ops,
	}
}

// Reserve takes one copy of the book. It fails with domain.ErrBookUnavailable when
// no copy is available.
func (l *Ledger) Reserve(ctx context.Context, bookID uuid.UUID) (*domain.Book, error) {
	ctx, span := l.start(ctx, "ledger.reserve", bookID)
	defer span.End()

	b, err := l.books.DecrementAvailable(ctx, bookID)
	l.count(ctx, "reserve", err)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("reserve copy: %w", err)
	}

	span.SetAttributes(attribute.Int("book.available", b.AvailableCopies))
	l.log.DebugContext(ctx, "copy reserved",
		slog.String("book_id", bookID.String()),
		slog.Int("available", b.AvailableCopies),
	)
	return b, nil
}

// Release returns one copy of the book. Releasing a book whose copies are all
// available is an invariant breach and fails with domain.ErrCopiesExceeded.
func (l *Ledger) Release(ctx context.Context, bookID uuid.UUID) (*domain.Book, error) {
	ctx, span := l.start(ctx, "ledger.release", bookID)
	defer span.End()

	b, err := l.books.IncrementAvailable(ctx, bookID)
	l.count(ctx, "release", err)
	if err != nil {
		recordError(span, err)
		if errors.Is(err, domain.ErrCopiesExceeded) {
			l.log.ErrorContext(ctx, "release on fully available book",
				slog.String("book_id", bookID.String()),
			)
		}
		return nil, fmt.Errorf("release copy: %w", err)
	}

	span.SetAttributes(attribute.Int("book.available", b.AvailableCopies))
	l.log.DebugContext(ctx, "copy released",
		slog.String("book_id", bookID.String()),
		slog.Int("available", b.AvailableCopies),
	)
	return b, nil
}

// AdjustTotal adds delta copies (negative to withdraw) and moves available copies by
// the same amount. The total must stay at least 1 and available copies at least 0.
func (l *Ledger) AdjustTotal(ctx context.Context, bookID uuid.UUID, delta int) (*domain.Book, error) {
	ctx, span := l.start(ctx, "ledger.adjust_total", bookID)
	defer span.End()
	span.SetAttributes(attribute.Int("delta", delta))

	if delta == 0 {
		return l.books.GetByID(ctx, bookID)
	}

	current, err := l.books.GetByID(ctx, bookID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var p domain.Problems
	switch total := current.TotalCopies + delta; {
	case total < 1:
		p.Add("total_copies", "must stay at least 1 (currently %d, delta %d)", current.TotalCopies, delta)
	case total > domain.MaxCopies:
		p.Add("total_copies", "must stay at most %d (currently %d, delta %d)", domain.MaxCopies, current.TotalCopies, delta)
	}
	if current.AvailableCopies+delta < 0 {
		p.Add("available_copies", "%d copies are on loan; cannot withdraw %d", current.TotalCopies-current.AvailableCopies, -delta)
	}
	if err := p.Err(); err != nil {
		recordError(span, err)
		return nil, err
	}

	b, err := l.books.AdjustCopies(ctx, bookID, delta)
	l.count(ctx, "adjust_total", err)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("adjust copies: %w", err)
	}

	l.log.InfoContext(ctx, "copies adjusted",
		slog.String("book_id", bookID.String()),
		slog.Int("delta", delta),
		slog.Int("total", b.TotalCopies),
		slog.Int("available", b.AvailableCopies),
	)
	return b, nil
}

func (l *Ledger) start(ctx context.Context, name string, bookID uuid.UUID) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("book.id", bookID.String())))
}

func (l *Ledger) count(ctx context.Context, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBookUnavailable):
		outcome = "unavailable"
	case errors.Is(err, domain.ErrCopiesExceeded):
		outcome = "exceeded"
	default:
		outcome = "error"
	}
	l.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
