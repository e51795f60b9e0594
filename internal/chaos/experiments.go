package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"booktracker/internal/catalog"
	"booktracker/internal/clients"
	"booktracker/internal/domain"
	"booktracker/internal/patron"
)

// Consistency counts books whose copy counts break 0 <= available <= total.
type Consistency func(ctx context.Context) (int, error)

// ConsistencyProbe turns a storage-level consistency check into a steady-state probe.
func ConsistencyProbe(check Consistency) Probe {
	return Probe{
		Name: "inconsistent_books",
		Query: func(ctx context.Context) (float64, error) {
			n, err := check(ctx)
			return float64(n), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// APIConsistency checks every book through the API. It is used when the drill has no
// direct database access.
func APIConsistency(api *clients.Client) Consistency {
	return func(ctx context.Context) (int, error) {
		const page = 200
		broken := 0
		for offset := 0; ; offset += page {
			books, err := api.ListBooks(ctx, "", page, offset)
			if err != nil {
				return 0, err
			}
			for _, s := range books {
				b, err := api.GetBook(ctx, s.ID)
				if err != nil {
					return 0, err
				}
				if b.TotalCopies < 1 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
					broken++
				}
			}
			if len(books) < page {
				return broken, nil
			}
		}
	}
}

// RegisterDefault registers the standard drill against api.
func (e *Engine) RegisterDefault(api *clients.Client, check Consistency, concurrency int) {
	e.Register(ConcurrentCheckoutExperiment(api, check, concurrency, 3))
	e.Register(DuplicateCreateExperiment(api, check, concurrency))
	e.Register(ReturnRaceExperiment(api, check, concurrency))
}

// ConcurrentCheckoutExperiment fires concurrency simultaneous checkouts at a book with
// copies copies, then returns every successful loan at once.
func ConcurrentCheckoutExperiment(api *clients.Client, check Consistency, concurrency, copies int) Experiment {
	var (
		bookID     uuid.UUID
		patronID   uuid.UUID
		succeeded  atomic.Int64
		unexpected atomic.Int64
		mu         sync.Mutex
		loans      []uuid.UUID
	)

	return Experiment{
		Name:       "concurrent-checkout-race",
		Hypothesis: "Concurrent checkouts never lend more copies than exist and returns restore availability",
		SteadyState: []Probe{
			ConsistencyProbe(check),
			{
				Name: "oversold_copies",
				Query: func(context.Context) (float64, error) {
					return float64(max(0, succeeded.Load()-int64(copies))), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			unexpectedProbe(&unexpected),
			missingCopiesProbe(api, &bookID),
		},
		Method: []Action{
			{
				Type:   "setup",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					var err error
					if bookID, err = createBook(ctx, api, "checkout race", copies); err != nil {
						return err
					}
					patronID, err = registerPatron(ctx, api)
					return err
				},
			},
			{
				Type:   "concurrent-checkouts",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					storm(concurrency, func() {
						rec, err := api.Checkout(ctx, bookID, patronID)
						switch {
						case err == nil:
							succeeded.Add(1)
							mu.Lock()
							loans = append(loans, rec.ID)
							mu.Unlock()
						case errors.Is(err, domain.ErrBookUnavailable):
						default:
							unexpected.Add(1)
						}
					})
					return nil
				},
			},
			{
				Type:   "concurrent-returns",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					mu.Lock()
					ids := append([]uuid.UUID(nil), loans...)
					mu.Unlock()

					var wg sync.WaitGroup
					for _, id := range ids {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := api.Return(ctx, id); err != nil {
								unexpected.Add(1)
							}
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Probe: "inconsistent_books", Condition: isZero, Message: "copy counts stay within [0, total]"},
			{Probe: "oversold_copies", Condition: isZero, Message: "no more loans than copies"},
			{Probe: "missing_copies", Condition: isZero, Message: "every returned copy is available again"},
		},
		Duration:       2 * time.Second,
		SampleInterval: 500 * time.Millisecond,
	}
}

// DuplicateCreateExperiment creates the same ISBN concurrently. Exactly one creation
// may succeed; the rest must fail with a duplicate key.
func DuplicateCreateExperiment(api *clients.Client, check Consistency, concurrency int) Experiment {
	var (
		created    atomic.Int64
		unexpected atomic.Int64
		title      = "duplicate race " + uuid.NewString()[:8]
	)

	return Experiment{
		Name:       "duplicate-isbn-race",
		Hypothesis: "Concurrent creations with one ISBN store exactly one book",
		SteadyState: []Probe{
			ConsistencyProbe(check),
			{
				Name: "extra_creations",
				Query: func(context.Context) (float64, error) {
					return float64(max(0, created.Load()-1)), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			unexpectedProbe(&unexpected),
			{
				Name: "books_with_title",
				Query: func(ctx context.Context) (float64, error) {
					books, err := api.ListBooks(ctx, title, 0, 0)
					return float64(len(books)), err
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-creates",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					isbn := randomISBN()
					storm(concurrency, func() {
						_, err := api.CreateBook(ctx, catalog.CreateBookInput{ISBN: isbn, Title: title})
						switch {
						case err == nil:
							created.Add(1)
						case errors.Is(err, domain.ErrDuplicateKey):
						default:
							unexpected.Add(1)
						}
					})
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Probe: "books_with_title", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one book stored"},
			{Probe: "unexpected_errors", Condition: isZero, Message: "losers fail with a duplicate key"},
		},
		Duration:       time.Second,
		SampleInterval: 500 * time.Millisecond,
	}
}

// ReturnRaceExperiment returns one loan concurrently. Exactly one return may succeed;
// the rest must fail with already returned.
func ReturnRaceExperiment(api *clients.Client, check Consistency, concurrency int) Experiment {
	var (
		bookID     uuid.UUID
		loanID     uuid.UUID
		returned   atomic.Int64
		unexpected atomic.Int64
	)

	return Experiment{
		Name:       "double-return-race",
		Hypothesis: "Concurrent returns of one loan release exactly one copy",
		SteadyState: []Probe{
			ConsistencyProbe(check),
			{
				Name: "successful_returns",
				Query: func(context.Context) (float64, error) {
					return float64(returned.Load()), nil
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
			unexpectedProbe(&unexpected),
			missingCopiesProbe(api, &bookID),
		},
		Method: []Action{
			{
				Type:   "setup",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					var err error
					if bookID, err = createBook(ctx, api, "return race", 1); err != nil {
						return err
					}
					patronID, err := registerPatron(ctx, api)
					if err != nil {
						return err
					}
					rec, err := api.Checkout(ctx, bookID, patronID)
					if err != nil {
						return err
					}
					loanID = rec.ID
					return nil
				},
			},
			{
				Type:   "concurrent-returns",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					storm(concurrency, func() {
						_, err := api.Return(ctx, loanID)
						switch {
						case err == nil:
							returned.Add(1)
						case errors.Is(err, domain.ErrAlreadyReturned):
						default:
							unexpected.Add(1)
						}
					})
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Probe: "successful_returns", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one return succeeds"},
			{Probe: "missing_copies", Condition: isZero, Message: "the copy is available again"},
			{Probe: "unexpected_errors", Condition: isZero, Message: "losers fail with already returned"},
		},
		Duration:       time.Second,
		SampleInterval: 500 * time.Millisecond,
	}
}

func unexpectedProbe(counter *atomic.Int64) Probe {
	return Probe{
		Name: "unexpected_errors",
		Query: func(context.Context) (float64, error) {
			return float64(counter.Load()), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// missingCopiesProbe reports total minus available copies of the drill book, zero
// before the book exists.
func missingCopiesProbe(api *clients.Client, bookID *uuid.UUID) Probe {
	return Probe{
		Name: "missing_copies",
		Query: func(ctx context.Context) (float64, error) {
			if *bookID == uuid.Nil {
				return 0, nil
			}
			b, err := api.GetBook(ctx, *bookID)
			if err != nil {
				return 0, err
			}
			return float64(b.TotalCopies - b.AvailableCopies), nil
		},
		Threshold: Threshold{Operator: ">=", Value: 0},
	}
}

func isZero(v float64) bool { return v == 0 }

// storm runs fn n times concurrently, releasing every goroutine at once.
func storm(n int, fn func()) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			fn()
		}()
	}
	close(start)
	wg.Wait()
}

func createBook(ctx context.Context, api *clients.Client, label string, copies int) (uuid.UUID, error) {
	b, err := api.CreateBook(ctx, catalog.CreateBookInput{
		ISBN:        randomISBN(),
		Title:       fmt.Sprintf("drill %s %s", label, uuid.NewString()[:8]),
		TotalCopies: &copies,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create drill book: %w", err)
	}
	return b.ID, nil
}

func registerPatron(ctx context.Context, api *clients.Client) (uuid.UUID, error) {
	tag := uuid.NewString()[:12]
	p, err := api.RegisterPatron(ctx, patron.RegisterInput{
		LibraryCardID: "DRILL-" + tag,
		FirstName:     "Drill",
		LastName:      "Patron",
		Email:         "drill-" + tag + "@example.com",
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("register drill patron: %w", err)
	}
	return p.ID, nil
}

func randomISBN() string {
	return fmt.Sprintf("%013d", rand.Int64N(1e13))
}
