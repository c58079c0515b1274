// Package migrations embeds SQL migration files into the binary, so
// deckd can migrate its database without shipping the SQL files
// alongside the executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/deckd/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the root of the embedded FS
}
