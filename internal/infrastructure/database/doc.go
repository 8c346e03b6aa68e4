// Package database provides the SQLite connection and schema migration
// machinery backing the sync ledger.
//
// The database records gallery sync runs and their per-item outcomes so
// operators can audit what was uploaded, skipped, or rejected and when.
// Migrations are embedded SQL files applied in version order at startup;
// each runs in its own transaction so a failed migration never leaves a
// half-applied schema.
//
// SQLite is opened in WAL mode with a single write connection, which is
// sufficient for the sync engine's strictly serialised write pattern.
package database
