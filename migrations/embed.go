// Package migrations carries the SQL schema compiled into the
// fleetguard binary, so a deployment needs no schema files on disk.
package migrations

import "embed"

// Files holds the embedded schema files. database.Migrate applies them
// in filename order; the schema is append-only and has no rollback
// path.
//
//go:embed *.sql
var Files embed.FS
