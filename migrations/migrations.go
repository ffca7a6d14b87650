// Package migrations embute os arquivos SQL de schema aplicados no boot.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
