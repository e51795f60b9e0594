package domain

import "time"

const day = 24 * time.Hour

// FinePolicy prices late returns. The fine for a late return is
// FlatFee + PerDay * daysLate, capped at Max when Max > 0. Any started day counts.
type FinePolicy struct {
	PerDay  Money
	FlatFee Money
	Max     Money
	// LostItemFee is charged on top of the late fine when a copy is declared lost.
	LostItemFee Money
}

// DaysLate returns the number of started days between due and at; zero if not late.
func DaysLate(due, at time.Time) int {
	if !at.After(due) {
		return 0
	}
	late := at.Sub(due)
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// ComputeFine is a pure function of the record's due date and its return date, or asOf
// for a record that is still out. It returns 0 when the record is not late.
func (p FinePolicy) ComputeFine(r BorrowingRecord, asOf time.Time) Money {
	at := asOf
	if r.ReturnDate != nil {
		at = *r.ReturnDate
	}
	days := DaysLate(r.DueDate, at)
	if days == 0 {
		return 0
	}
	fine := p.FlatFee + p.PerDay*Money(days)
	if p.Max > 0 && fine > p.Max {
		fine = p.Max
	}
	if fine < 0 {
		return 0
	}
	return fine
}
