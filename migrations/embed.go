// Package migrations embeds the SQL schema so cmd/migrate can run
// without shipping loose files alongside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
