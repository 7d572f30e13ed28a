// Package migrations embeds the SQL schema migrations for each backend.
package migrations

import "embed"

// SQLite holds the sqlite/ migrations.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the postgres/ migrations.
//
//go:embed postgres/*.sql
var Postgres embed.FS
