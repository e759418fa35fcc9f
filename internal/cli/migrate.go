package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"live-quiz-service/internal/config"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
)

var errNoPostgres = errors.New("postgres url not configured")

// newMigrateCmd applies the schema; its subcommands inspect or undo it.
func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
				return applyMigrations(ctx, m, logger)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(ctx context.Context, m *migrate.Migrator, _ *slog.Logger) error {
				ms, err := m.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				for _, mig := range ms {
					state := "pending"
					if mig.IsApplied() {
						state = fmt.Sprintf("applied (group %d)", mig.GroupID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s_%s\t%s\n", mig.Name, mig.Comment, state)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Undo the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
				group, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					logger.Info("nothing to roll back")
					return nil
				}
				logger.Info("migrations rolled back", "group", group.String())
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, opts *options, fn func(context.Context, *migrate.Migrator, *slog.Logger) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errNoPostgres
	}
	db := openBun(cfg)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	return fn(ctx, migrator, newLogger(cfg))
}

// runMigrationsWithConfig brings the schema up to date before serving.
func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		return errNoPostgres
	}
	db := openBun(cfg)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	return applyMigrations(ctx, migrator, logger)
}

func applyMigrations(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
	group, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		logger.Info("schema up to date")
		return nil
	}
	logger.Info("migrations applied", "group", group.String())
	return nil
}

func openBun(cfg config.Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	return bun.NewDB(sqldb, pgdialect.New())
}
