// Package migrations holds the goose SQL migrations of the gemfield schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
