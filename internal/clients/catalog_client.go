// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"booktracker/internal/catalog"
)

// ListBooks returns book summaries whose title contains title (any title when empty).
func (c *Client) ListBooks(ctx context.Context, title string, limit, offset int) ([]catalog.BookSummary, error) {
	q := url.Values{}
	if title != "" {
		q.Set("title", title)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var books []catalog.BookSummary
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.BookDetail, error) {
	var book catalog.BookDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%s", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) CreateBook(ctx context.Context, in catalog.CreateBookInput) (*catalog.BookDetail, error) {
	var book catalog.BookDetail
	if err := c.do(ctx, http.MethodPost, "/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/books/%s", id), nil, nil)
}
