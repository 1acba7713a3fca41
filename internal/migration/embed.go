package migration

import "embed"

// Schema migrations ship inside the binary so deploys never depend on a
// migrations directory being present on disk.
//
//go:embed migrations/*.up.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"
