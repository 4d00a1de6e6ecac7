// Package migrations embeds the backoffice journal changesets.
package migrations

import "embed"

// FS contains embedded SQLite changesets for the backoffice journal.
//
//go:embed *.sql
var FS embed.FS
