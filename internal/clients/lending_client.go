// internal/clients/lending_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"booktracker/internal/circulation"
	"booktracker/internal/domain"
	"booktracker/internal/patron"
)

func (c *Client) RegisterPatron(ctx context.Context, in patron.RegisterInput) (*domain.Patron, error) {
	var p domain.Patron
	if err := c.do(ctx, http.MethodPost, "/patrons", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Checkout lends one copy of a book to a patron.
func (c *Client) Checkout(ctx context.Context, bookID, patronID uuid.UUID) (*circulation.Record, error) {
	var rec circulation.Record
	in := circulation.CheckoutInput{BookID: bookID, PatronID: patronID}
	if err := c.do(ctx, http.MethodPost, "/loans", in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Return closes a loan.
func (c *Client) Return(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error) {
	var rec circulation.Record
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/loans/%s/return", recordID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
