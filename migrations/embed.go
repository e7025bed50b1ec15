// Package migrations carries the versioned SQL schema of the service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
