// Package migrations embeds the SQL schema for the transaction history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
