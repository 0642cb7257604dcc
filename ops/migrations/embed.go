// Package migrations embeds the schema and seed SQL applied by cmd/migrate.
package migrations

import "embed"

// FS holds sql/*.up.sql, sql/*.down.sql and seeds/*.sql.
//
//go:embed sql/*.sql seeds/*.sql
var FS embed.FS
