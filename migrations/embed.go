// Package migrations bundles the proxy's SQL schema.
package migrations

import "embed"

// FS holds the NNN_description.sql files.
//
//go:embed *.sql
var FS embed.FS
