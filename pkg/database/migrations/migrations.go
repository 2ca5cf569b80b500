// Package migrations embeds the relay's schema, one directory per driver.
package migrations

import "embed"

//go:embed sqlite3/*.sql pgx/*.sql
var FS embed.FS

// Dir returns the directory of FS holding the migrations for driver.
func Dir(driver string) string {
	return driver
}
