// Package migrations embeds the billing Postgres changesets.
package migrations

import "embed"

// FS contains embedded Postgres changesets for billing storage.
//
//go:embed *.sql
var FS embed.FS
