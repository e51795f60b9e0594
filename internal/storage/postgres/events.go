package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"booktracker/internal/domain"
)

// EventStore is the append-only lending event log with optimistic concurrency on
// the aggregate version.
type EventStore struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewEventStore creates an event store over db.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{
		db:     db,
		tracer: otel.Tracer("booktracker/eventstore"),
	}
}

// Append adds events to the history of an aggregate. It fails with ErrTransient when
// the current version differs from expectedVersion, including when a concurrent
// writer wins the race on the (aggregate_id, version) unique key.
func (s *EventStore) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []domain.LendingEvent) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	q := QuerierFromCtx(ctx, s.db)

	var current int
	err := q.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM lending_events WHERE aggregate_id = $1`, aggregateID)
	if err != nil {
		return s.fail(span, wrap(err, "query current version"))
	}
	if current != expectedVersion {
		return s.fail(span, fmt.Errorf("append to %s %s: version %d, expected %d: %w",
			aggregateType, aggregateID, current, expectedVersion, domain.ErrTransient))
	}

	for i, e := range events {
		version := expectedVersion + i + 1
		_, err := q.ExecContext(ctx, `
			INSERT INTO lending_events (aggregate_id, aggregate_type, event_type, payload, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			aggregateID, aggregateType, e.EventType, string(e.Payload), version, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return s.fail(span, fmt.Errorf("append to %s %s at version %d: %w",
					aggregateType, aggregateID, version, domain.ErrTransient))
			}
			return s.fail(span, wrap(err, "insert event %s", e.EventType))
		}
	}

	span.SetAttributes(attribute.Int("new.version", expectedVersion+len(events)))
	return nil
}

type eventRow struct {
	ID            int64     `db:"id"`
	AggregateID   uuid.UUID `db:"aggregate_id"`
	AggregateType string    `db:"aggregate_type"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

// Load returns the history of an aggregate in version order.
func (s *EventStore) Load(ctx context.Context, aggregateID uuid.UUID) ([]domain.LendingEvent, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	var rows []eventRow
	err := QuerierFromCtx(ctx, s.db).SelectContext(ctx, &rows, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, version, created_at
		FROM lending_events
		WHERE aggregate_id = $1
		ORDER BY version`, aggregateID)
	if err != nil {
		return nil, s.fail(span, wrap(err, "load events"))
	}

	events := make([]domain.LendingEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.LendingEvent{
			ID:            row.ID,
			AggregateID:   row.AggregateID,
			AggregateType: row.AggregateType,
			EventType:     row.EventType,
			Payload:       row.Payload,
			Version:       row.Version,
			CreatedAt:     row.CreatedAt,
		})
	}
	span.SetAttributes(attribute.Int("event.count", len(events)))
	return events, nil
}

func (s *EventStore) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
