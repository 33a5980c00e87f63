// Package store provides SQLite-backed durable storage for synchronised
// commerce data and the cursors that track ingestion progress.
//
// Tables:
//   - stores: connected storefronts and their opaque credential
//   - orders / order_items: upserted by natural key, items cascade with
//     their order
//   - variant_snapshots: append-only price and stock observations
//   - sync_state: one monotonic cursor per (store, entity type)
//   - sync_runs: ledger of sync invocations
//   - rec_logs: recorded slow-mover recommendations
//
// # Invariants
//
// Idempotent writes: every order and item write is an INSERT ... ON
// CONFLICT upsert keyed by natural identity, so replaying a page never
// duplicates rows.
//
// Monotonic cursors: WriteCursor compares inside the upsert
// (WHERE excluded.cursor > sync_state.cursor), so concurrent runs converge
// on the maximum and a slow stale run cannot regress the cursor.
//
// Deterministic reads: every multi-row query has a total ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Optional tables and columns are detected once by Open (Capabilities), so
// a schema provisioned elsewhere with WithoutMigrations still works.
package store
