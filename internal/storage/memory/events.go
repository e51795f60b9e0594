package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/domain"
)

// EventLog is the in-memory lending event log.
type EventLog struct {
	s *Store
}

// Append adds events to the history of an aggregate, failing with ErrTransient when
// the current version differs from expectedVersion.
func (l *EventLog) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []domain.LendingEvent) error {
	return l.s.exec(ctx, func(u *unitOfWork) error {
		history := l.s.events[aggregateID]
		if current := len(history); current != expectedVersion {
			return fmt.Errorf("append to %s %s: version %d, expected %d: %w",
				aggregateType, aggregateID, current, expectedVersion, domain.ErrTransient)
		}
		prevSeq := l.s.eventSeq
		next := history
		for i, e := range events {
			l.s.eventSeq++
			e.ID = l.s.eventSeq
			e.AggregateID = aggregateID
			e.AggregateType = aggregateType
			e.Version = expectedVersion + i + 1
			e.CreatedAt = time.Now().UTC()
			next = append(next, e)
		}
		l.s.events[aggregateID] = next
		u.onRollback(func() {
			l.s.events[aggregateID] = history
			l.s.eventSeq = prevSeq
		})
		return nil
	})
}

// Load returns the history of an aggregate in version order.
func (l *EventLog) Load(ctx context.Context, aggregateID uuid.UUID) ([]domain.LendingEvent, error) {
	var out []domain.LendingEvent
	err := l.s.exec(ctx, func(*unitOfWork) error {
		out = append(out, l.s.events[aggregateID]...)
		return nil
	})
	return out, err
}
