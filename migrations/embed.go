// Package migrations embeds the SQL schema so the binary and tests migrate
// without a migrations directory on disk.
package migrations

import "embed"

// FS holds the numbered migration files
//
//go:embed *.sql
var FS embed.FS
