package postgres

import "embed"

// Migrations holds the embedded goose migration files so the binary can
// migrate its own schema at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
