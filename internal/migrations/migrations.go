// Package migrations embeds the PostgreSQL schema for the durable queue and the audit trail.
package migrations

import "embed"

// FS holds the numbered up/down migration files at its root.
//
//go:embed *.sql
var FS embed.FS
