// Package migrations holds the SQL schema shared by the postgres deployment and the sqlite test database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
