// Package migrations embeds the billing schema for bun-based runners.
package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL so deployments with their own migration
// tooling can apply it directly.
var FS = migrationFS

// Migrations is the bun/migrate registry holding the billing schema.
var Migrations = migrate.NewMigrations()

func init() {
	_ = Migrations.Discover(migrationFS)
}
