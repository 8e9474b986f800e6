// Package migrations embeds the sidecar schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
