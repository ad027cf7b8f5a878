// Package migrations embeds the SQL schema applied at startup.
package migrations

import "embed"

// FS holds the *.up.sql files in apply order.
//
//go:embed *.sql
var FS embed.FS

// Initial is the file name of the first schema migration.
const Initial = "001_initial_schema.up.sql"
