// Package migrations embeds the ledger Postgres changesets.
package migrations

import "embed"

// FS contains embedded Postgres changesets for ledger storage.
//
//go:embed *.sql
var FS embed.FS
