// Package migrations embeds the SQL schema migrations for the user and
// booking stores.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
