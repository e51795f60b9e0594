// cmd/booktracker/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"booktracker/internal/app"
	"booktracker/internal/chaos"
	"booktracker/internal/clients"
	"booktracker/internal/config"
	"booktracker/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "booktracker",
		Short:         "Library inventory and lending service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (overrides CONFIG_PATH)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newDrillCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg.Log)

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the database schema",
	}

	run := func(step func(string) error, done string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations need the postgres driver (configured: %s)", cfg.Database.Driver)
			}
			logger := app.NewLogger(cfg.Log)
			if err := step(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info(done)
			return nil
		}
	}

	migrate.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(postgres.MigrateUp, "migrations applied")},
		&cobra.Command{Use: "down", Short: "Revert every migration", RunE: run(postgres.MigrateDown, "migrations reverted")},
	)
	return migrate
}

func newDrillCmd() *cobra.Command {
	var (
		baseURL     string
		databaseURL string
		concurrency int
		pause       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Run consistency experiments against a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := app.NewLogger(config.LogConfig{Level: "info", Format: "text"})

			api := clients.New(baseURL, clients.Options{MaxRetries: 3})
			check := chaos.APIConsistency(api)
			if databaseURL != "" {
				db, err := postgres.Open(ctx, config.DatabaseConfig{URL: databaseURL, MaxOpenConns: 2, MaxIdleConns: 1})
				if err != nil {
					return err
				}
				store := postgres.NewStore(db)
				defer store.Close()
				check = store.Consistency
			}

			engine := chaos.NewEngine(logger)
			engine.RegisterDefault(api, check, concurrency)

			results := engine.RunAll(ctx, pause)
			chaos.Report(cmd.OutOrStdout(), results)

			for _, r := range results {
				if !r.HypothesisHeld {
					logger.Error("drill failed", slog.String("experiment", r.Experiment))
					return fmt.Errorf("experiment %s violated its hypothesis", r.Experiment)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080/api/v1", "API root of the service under test")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "probe copy counts directly in this database instead of through the API")
	cmd.Flags().IntVar(&concurrency, "concurrency", 50, "concurrent requests per experiment")
	cmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "pause between experiments")
	return cmd
}
