package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/app"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/shared/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "journal-service",
		Short:         "Health journal API: accounts, sessions, password reset and journal entries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("failed to start journal service")
				return err
			}

			if err := a.Run(ctx); err != nil {
				log.Error().Err(err).Msg("journal service stopped with error")
				return err
			}

			log.Info().Msg("journal service stopped")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StoreDriverPostgres {
				err := fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.Store.Driver)
				log.Error().Err(err).Msg("nothing to migrate")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := repository.OpenPostgresDB(ctx, cfg.Store, log)
			if err != nil {
				log.Error().Err(err).Msg("failed to connect to postgres")
				return err
			}
			defer db.Close()

			if err := repository.RunMigrations(ctx, db); err != nil {
				log.Error().Err(err).Msg("failed to apply migrations")
				return err
			}

			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func bootstrap() (*config.JournalServiceConfig, *zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	log := logger.NewLogger(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.Discovery.ServiceName,
	})

	return cfg, log, nil
}
