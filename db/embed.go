// Package db embeds the database schema and the sample catalog used by
// seed-db.
package db

import "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent so the schema can be applied on each start.
//
//go:embed migrations/001_schema.sql
var Schema string

// Seed holds the JSON seed files under seed/.
//
//go:embed seed/*.json
var Seed embed.FS
