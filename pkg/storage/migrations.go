package storage

import "embed"

// migrationsFS ships the schema with the binary so a store can create its
// tables on first open without any external files.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
