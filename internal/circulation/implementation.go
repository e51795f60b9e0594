// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"booktracker/internal/domain"
	"booktracker/internal/metrics"
)

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type recordRepo interface {
	Create(ctx context.Context, rec *domain.BorrowingRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BorrowingRecord, error)
	Update(ctx context.Context, rec *domain.BorrowingRecord, expectedVersion int) error
	ListByPatron(ctx context.Context, patronID uuid.UUID) ([]domain.BorrowingRecord, error)
	ListOpenDueBefore(ctx context.Context, t time.Time) ([]domain.BorrowingRecord, error)
}

type patronReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Patron, error)
}

type eventLog interface {
	Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []domain.LendingEvent) error
	Load(ctx context.Context, aggregateID uuid.UUID) ([]domain.LendingEvent, error)
}

type copyLedger interface {
	Reserve(ctx context.Context, bookID uuid.UUID) (*domain.Book, error)
	Release(ctx context.Context, bookID uuid.UUID) (*domain.Book, error)
}

// Deps are the collaborators of the circulation service.
type Deps struct {
	Tx         txManager
	Records    recordRepo
	Patrons    patronReader
	Events     eventLog
	Ledger     copyLedger
	Policy     domain.FinePolicy
	LoanPeriod time.Duration
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// service implements the Service interface.
type service struct {
	tx         txManager
	records    recordRepo
	patrons    patronReader
	events     eventLog
	ledger     copyLedger
	policy     domain.FinePolicy
	loanPeriod time.Duration
	metrics    metrics.Recorder
	log        *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService creates a new circulation service instance.
func NewService(d Deps) Service {
	s := &service{
		tx:         d.Tx,
		records:    d.Records,
		patrons:    d.Patrons,
		events:     d.Events,
		ledger:     d.Ledger,
		policy:     d.Policy,
		loanPeriod: d.LoanPeriod,
		metrics:    d.Metrics,
		log:        d.Logger.With("service", "circulation"),
		tracer:     otel.Tracer("booktracker/circulation"),
		now:        d.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Checkout lends one copy of a book to an active patron. The copy reservation, the
// new record and its first event are committed together or not at all.
func (s *service) Checkout(ctx context.Context, bookID, patronID uuid.UUID, notes string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout", trace.WithAttributes(
		attribute.String("book.id", bookID.String()),
		attribute.String("patron.id", patronID.String()),
	))
	defer span.End()
	start := time.Now()

	now := s.now().UTC()
	var rec domain.BorrowingRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.patrons.GetByID(ctx, patronID)
		if err != nil {
			return err
		}
		if !p.CanBorrow() {
			return fmt.Errorf("patron %s is %s: %w", p.ID, p.MembershipStatus, domain.ErrPatronIneligible)
		}

		if _, err := s.ledger.Reserve(ctx, bookID); err != nil {
			return err
		}

		rec = domain.NewBorrowingRecord(bookID, patronID, now, s.loanPeriod)
		if n := strings.TrimSpace(notes); n != "" {
			rec.Notes = &n
		}
		if err := s.records.Create(ctx, &rec); err != nil {
			return fmt.Errorf("create borrowing record: %w", err)
		}

		return s.appendEvent(ctx, rec.ID, 0, domain.EventBookCheckedOut, BookCheckedOutEvent{
			RecordID: rec.ID,
			BookID:   bookID,
			PatronID: patronID,
			DueDate:  rec.DueDate,
		})
	})
	s.metrics.RecordLatency("checkout", time.Since(start))
	if err != nil {
		s.metrics.RecordCheckoutRejected(rejectReason(err))
		recordError(span, err)
		s.log.WarnContext(ctx, "checkout rejected",
			slog.String("book_id", bookID.String()),
			slog.String("patron_id", patronID.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.metrics.RecordCheckout()
	span.SetAttributes(attribute.String("record.id", rec.ID.String()))
	s.log.InfoContext(ctx, "book checked out",
		slog.String("record_id", rec.ID.String()),
		slog.String("book_id", bookID.String()),
		slog.String("patron_id", patronID.String()),
		slog.Time("due_date", rec.DueDate),
	)
	out := newRecord(rec, now)
	return &out, nil
}

// Return closes a loan, assesses the late fine and puts the copy back.
func (s *service) Return(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(
		attribute.String("record.id", recordID.String()),
	))
	defer span.End()
	start := time.Now()

	now := s.now().UTC()
	var (
		next     domain.BorrowingRecord
		daysLate int
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		next, err = cur.Transition(domain.StatusReturned)
		if err != nil {
			return err
		}
		next.ReturnDate = &now
		daysLate = domain.DaysLate(next.DueDate, now)
		if fine := s.policy.ComputeFine(next, now); fine > 0 {
			next.Fine = &fine
		}

		if err := s.records.Update(ctx, &next, cur.Version); err != nil {
			return fmt.Errorf("update borrowing record: %w", err)
		}
		if _, err := s.ledger.Release(ctx, cur.BookID); err != nil {
			return err
		}
		return s.appendEvent(ctx, next.ID, cur.Version, domain.EventBookReturned, BookReturnedEvent{
			RecordID:   next.ID,
			BookID:     next.BookID,
			ReturnDate: now,
			DaysLate:   daysLate,
			Fine:       next.OutstandingFine(),
		})
	})
	s.metrics.RecordLatency("return", time.Since(start))
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.metrics.RecordReturn(daysLate > 0)
	if fine := next.OutstandingFine(); fine > 0 {
		s.metrics.RecordFineAssessed(int64(fine))
	}
	s.log.InfoContext(ctx, "book returned",
		slog.String("record_id", next.ID.String()),
		slog.String("book_id", next.BookID.String()),
		slog.Int("days_late", daysLate),
		slog.String("fine", next.OutstandingFine().String()),
	)
	out := newRecord(next, now)
	return &out, nil
}

// MarkLost closes a loan whose copy will not come back. The copy stays out of the
// available count; the fine is the lost-item fee plus the late fine so far.
func (s *service) MarkLost(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.mark_lost", trace.WithAttributes(
		attribute.String("record.id", recordID.String()),
	))
	defer span.End()

	now := s.now().UTC()
	var next domain.BorrowingRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		next, err = cur.Transition(domain.StatusLost)
		if err != nil {
			return err
		}
		if fine := s.policy.LostItemFee + s.policy.ComputeFine(*cur, now); fine > 0 {
			next.Fine = &fine
		}
		if err := s.records.Update(ctx, &next, cur.Version); err != nil {
			return fmt.Errorf("update borrowing record: %w", err)
		}
		return s.appendEvent(ctx, next.ID, cur.Version, domain.EventBookMarkedLost, BookMarkedLostEvent{
			RecordID: next.ID,
			BookID:   next.BookID,
			LostAt:   now,
			Fine:     next.OutstandingFine(),
		})
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.metrics.RecordLost()
	if fine := next.OutstandingFine(); fine > 0 {
		s.metrics.RecordFineAssessed(int64(fine))
	}
	s.log.InfoContext(ctx, "book marked lost",
		slog.String("record_id", next.ID.String()),
		slog.String("book_id", next.BookID.String()),
		slog.String("fine", next.OutstandingFine().String()),
	)
	out := newRecord(next, now)
	return &out, nil
}

// SettleFine records payment of the outstanding fine of a closed record.
func (s *service) SettleFine(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.settle_fine", trace.WithAttributes(
		attribute.String("record.id", recordID.String()),
	))
	defer span.End()

	now := s.now().UTC()
	var (
		next   domain.BorrowingRecord
		amount domain.Money
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		amount = cur.OutstandingFine()
		if amount == 0 {
			return domain.NewValidationError("fine_amount", "record has no outstanding fine")
		}
		next = *cur
		next.FineSettledAt = &now
		next.Version++
		if err := s.records.Update(ctx, &next, cur.Version); err != nil {
			return fmt.Errorf("update borrowing record: %w", err)
		}
		return s.appendEvent(ctx, next.ID, cur.Version, domain.EventFineSettled, FineSettledEvent{
			RecordID:  next.ID,
			Amount:    amount,
			SettledAt: now,
		})
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.metrics.RecordFineSettled(int64(amount))
	s.log.InfoContext(ctx, "fine settled",
		slog.String("record_id", next.ID.String()),
		slog.String("amount", amount.String()),
	)
	out := newRecord(next, now)
	return &out, nil
}

func (s *service) GetRecord(ctx context.Context, recordID uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	out := newRecord(*rec, s.now())
	return &out, nil
}

func (s *service) ListPatronRecords(ctx context.Context, patronID uuid.UUID) ([]Record, error) {
	if _, err := s.patrons.GetByID(ctx, patronID); err != nil {
		return nil, err
	}
	recs, err := s.records.ListByPatron(ctx, patronID)
	if err != nil {
		return nil, fmt.Errorf("list borrowing records: %w", err)
	}
	return s.view(recs, s.now()), nil
}

// ListOverdue returns the open loans whose due date has passed at asOf.
func (s *service) ListOverdue(ctx context.Context, asOf time.Time) ([]Record, error) {
	recs, err := s.records.ListOpenDueBefore(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue records: %w", err)
	}
	return s.view(recs, asOf), nil
}

// History returns the lending events of a record in version order.
func (s *service) History(ctx context.Context, recordID uuid.UUID) ([]domain.LendingEvent, error) {
	if _, err := s.records.GetByID(ctx, recordID); err != nil {
		return nil, err
	}
	return s.events.Load(ctx, recordID)
}

func (s *service) ComputeFine(rec domain.BorrowingRecord, asOf time.Time) domain.Money {
	return s.policy.ComputeFine(rec, asOf)
}

func (s *service) view(recs []domain.BorrowingRecord, now time.Time) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, newRecord(r, now))
	}
	return out
}

func (s *service) appendEvent(ctx context.Context, recordID uuid.UUID, expectedVersion int, eventType string, payload any) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event := domain.LendingEvent{
		AggregateID:   recordID,
		AggregateType: domain.AggregateBorrowingRecord,
		EventType:     eventType,
		Payload:       data,
		Version:       expectedVersion + 1,
	}
	if err := s.events.Append(ctx, recordID, domain.AggregateBorrowingRecord, expectedVersion, []domain.LendingEvent{event}); err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBookUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrPatronIneligible):
		return "ineligible"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
