// Package migrations embeds SQL migration files into the binary.
//
// This lets canvasd run schema migrations without shipping SQL files
// alongside the executable - they're compiled in.
package migrations

import (
	"embed"

	"github.com/opencanvas/canvas-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
}
