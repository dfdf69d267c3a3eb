// Package sqlite provides a SQLite-backed implementation of the driven
// storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database file serves all stores:
//
//   - CursorStore: per-importer sync cursors
//   - RecordStore: local content records keyed by bundle and identity key
//   - RunStore: importer run history
//   - SchedulerStore: scheduled task state and results
//
// # Schema
//
// The schema is managed through numbered migrations embedded from the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.openleg-sync/data/openleg.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode with a
// busy timeout so concurrent importers do not fail on lock contention.
package sqlite
