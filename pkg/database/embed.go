package database

import "embed"

// Migrations holds the bundled SQLite schema under migrations/sqlite
//
//go:embed migrations/sqlite/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the SQLite files
const MigrationsDir = "migrations/sqlite"
