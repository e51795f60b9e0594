package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booktracker/internal/config"
	"booktracker/internal/metrics"
	"booktracker/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Lending:  config.LendingConfig{LoanPeriod: 14 * 24 * time.Hour, FinePerDayCents: 25, LostItemFeeCents: 2000},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *backend) {
	t.Helper()
	store := memoryBackend(memory.NewStore())
	reg := prometheus.NewRegistry()
	mp, err := SetupMetrics(context.Background(), config.TelemetryConfig{ServiceName: "booktracker"}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(newHandler(testConfig(), logger, store, metrics.NewCollector(reg), mp.Meter("booktracker/ledger"), reg))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type idResponse struct {
	ID string `json:"id"`
}

func TestRouter_LendingRoundTrip(t *testing.T) {
	srv, store := newTestServer(t)

	var genre idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/genres", map[string]any{"name": "Science Fiction"}, &genre))

	var author idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/authors",
		map[string]any{"first_name": "Ursula", "last_name": "Le Guin"}, &author))

	var book struct {
		ID              string `json:"id"`
		GenreName       string `json:"genre_name"`
		AvailableCopies int    `json:"available_copies"`
		Authors         []any  `json:"authors"`
	}
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/books", map[string]any{
		"isbn":         "9780441478125",
		"title":        "The Left Hand of Darkness",
		"genre_id":     genre.ID,
		"author_ids":   []string{author.ID, author.ID},
		"total_copies": 1,
	}, &book))
	assert.Equal(t, "Science Fiction", book.GenreName)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Len(t, book.Authors, 1)

	var patron idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/patrons", map[string]any{
		"library_card_id": "LC-1",
		"first_name":      "Ged",
		"last_name":       "Sparrowhawk",
		"email":           "ged@example.com",
	}, &patron))

	var loan idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/loans",
		map[string]any{"book_id": book.ID, "patron_id": patron.ID}, &loan))

	var problem struct {
		Code string `json:"code"`
	}
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/v1/loans",
		map[string]any{"book_id": book.ID, "patron_id": patron.ID}, &problem))

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodDelete, "/api/v1/books/"+book.ID, nil, nil))

	var returned struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/v1/loans/"+loan.ID+"/return", nil, &returned))
	assert.Equal(t, "Returned", returned.Status)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/v1/loans/"+loan.ID+"/return", nil, nil))

	var history []struct {
		EventType string `json:"event_type"`
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/v1/loans/"+loan.ID+"/history", nil, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "BookReturned", history[1].EventType)

	broken, err := store.consistency(context.Background())
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "booktracker_"), "expected booktracker metrics")
}

func TestRouter_LedgerOperationsExposedOnMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	var book idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/books", map[string]any{
		"isbn":         "9780553293357",
		"title":        "Foundation",
		"total_copies": 1,
	}, &book))
	var patron idResponse
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/patrons", map[string]any{
		"library_card_id": "LC-7",
		"first_name":      "Hari",
		"last_name":       "Seldon",
		"email":           "hari@example.com",
	}, &patron))
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/loans",
		map[string]any{"book_id": book.ID, "patron_id": patron.ID}, nil))

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "booktracker_ledger_operations_total{") &&
			strings.Contains(line, `op="reserve"`) && strings.Contains(line, `outcome="ok"`) {
			found = true
			assert.True(t, strings.HasSuffix(line, " 1"), line)
		}
	}
	assert.True(t, found, "reserve counter missing from /metrics")
}

func TestRouter_RejectsNonJSONBodies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/api/v1/genres", "text/plain", strings.NewReader("name=x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	_, err := openBackend(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}
