// Package migrations embeds the SQL schema files in golang-migrate's
// <version>_<name>.<up|down>.sql layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
