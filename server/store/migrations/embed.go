// Package migrations embeds the schema files for each store backend.
// Postgres files are text/template sources rendered with the vector dimension.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS
