// Package migrations embeds the SQL migration files so binaries can run
// them without a copy of the source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
