// Package migrations embeds the SQL migration files so the binary can bring
// any database up to date without shipping loose files alongside it.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
