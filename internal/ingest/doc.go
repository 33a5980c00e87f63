// Package ingest implements incremental synchronisation of upstream orders
// and catalog variants into the store.
//
// An orders run reads the stored cursor for (store, entity), walks upstream
// pages modified since that cursor (or since a bounded lookback when there
// is none), flattens each page into rows and writes them, then persists the
// greatest modification time it wrote as the new cursor.
//
// A variants run walks the whole catalog every time and appends one
// snapshot per variant. Its cursor records the newest product change seen
// but is never sent upstream as a filter.
//
// # Guarantees
//
//   - Idempotent: orders and items are upserted by natural key; replaying a
//     run duplicates nothing except the append-only variant snapshots.
//   - Monotonic cursor: persisted through a compare-and-set that keeps the
//     maximum, and only after a run completes or is capped. A failed run
//     leaves the stored cursor where it was.
//   - Page boundaries: page and wall-clock caps are checked between pages,
//     never mid-page.
//   - Malformed records are skipped and counted; any other failure aborts
//     the run with a *SyncError.
//
// Retries of temporary upstream failures live here, not in the commerce
// client, so that what the cursor says was written always matches the store.
package ingest
