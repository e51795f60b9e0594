// Package app wires configuration, storage, services and the HTTP server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/metric"

	"booktracker/internal/catalog"
	"booktracker/internal/circulation"
	"booktracker/internal/config"
	"booktracker/internal/guard"
	"booktracker/internal/ledger"
	"booktracker/internal/metrics"
	"booktracker/internal/patron"
	"booktracker/internal/web"
)

// App is a configured, not yet running, service.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *backend
	server   *http.Server
	shutdown []ShutdownFunc
}

// New opens storage and builds the HTTP server described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	stopTracing, err := SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	store, err := openBackend(ctx, cfg.Database)
	if err != nil {
		_ = stopTracing(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mp, err := SetupMetrics(ctx, cfg.Telemetry, reg)
	if err != nil {
		_ = stopTracing(ctx)
		_ = store.close()
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	handler := newHandler(cfg, logger, store, metrics.NewCollector(reg), mp.Meter("booktracker/ledger"), reg)

	return &App{
		cfg:   cfg,
		log:   logger,
		store: store,
		server: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		shutdown: []ShutdownFunc{stopTracing, mp.Shutdown},
	}, nil
}

func newHandler(cfg *config.Config, logger *slog.Logger, store *backend, rec metrics.Recorder, meter metric.Meter, gatherer prometheus.Gatherer) http.Handler {
	g := guard.New(store.books, store.authors, store.genres, store.patrons, store.borrowings)
	l := ledger.New(logger, store.books, ledger.WithMeter(meter))

	catalogSvc := catalog.NewService(catalog.Deps{
		Tx:      store,
		Books:   store.books,
		Authors: store.authors,
		Genres:  store.genres,
		Guard:   g,
		Ledger:  l,
		Logger:  logger,
	})
	patronSvc := patron.NewService(logger, store, store.patrons, g)
	circulationSvc := circulation.NewService(circulation.Deps{
		Tx:         store,
		Records:    store.borrowings,
		Patrons:    store.patrons,
		Events:     store.events,
		Ledger:     l,
		Policy:     cfg.Lending.FinePolicy(),
		LoanPeriod: cfg.Lending.LoanPeriod,
		Metrics:    rec,
		Logger:     logger,
	})

	var limiter *web.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = web.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	return NewRouter(RouterDeps{
		Logger:      logger,
		Limiter:     limiter,
		Gatherer:    gatherer,
		Health:      store.ping,
		Catalog:     catalog.NewHandler(catalogSvc),
		Patrons:     patron.NewHandler(patronSvc),
		Circulation: circulation.NewHandler(circulationSvc),
	})
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening",
			slog.String("addr", a.server.Addr),
			slog.String("driver", a.cfg.Database.Driver),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.close(context.Background())
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.close(shutdownCtx)
	return err
}

func (a *App) close(ctx context.Context) {
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			a.log.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}
	if err := a.store.close(); err != nil {
		a.log.Warn("close storage", slog.Any("error", err))
	}
}

// Consistency counts books whose copy counts break their invariant.
func (a *App) Consistency(ctx context.Context) (int, error) {
	return a.store.consistency(ctx)
}

// Close releases storage and telemetry without serving.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.close(ctx)
}
