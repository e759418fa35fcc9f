package migrations

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds the Postgres schema of the quiz service. Each step is a
// plain SQL script registered under a sortable timestamp name.
var Migrations = migrate.NewMigrations()

func sqlMigration(name, comment, up, down string) migrate.Migration {
	return migrate.Migration{
		Name:    name,
		Comment: comment,
		Up: func(ctx context.Context, db *bun.DB) error {
			return execAll(ctx, db, up)
		},
		Down: func(ctx context.Context, db *bun.DB) error {
			return execAll(ctx, db, down)
		},
	}
}

// execAll runs each ';'-separated statement of script.
func execAll(ctx context.Context, db *bun.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
