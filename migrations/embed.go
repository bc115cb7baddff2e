// Package migrations holds the numbered golang-migrate schema files. They are
// embedded so the binary can migrate without the directory on disk.
package migrations

import "embed"

// FS contains every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
