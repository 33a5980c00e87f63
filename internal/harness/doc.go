// Package harness runs end-to-end sync and analytics scenarios.
//
// A scenario starts from a fixed clock, a connected store and a fake
// upstream serving canned pages. Its flow invokes the real ingestion and
// analytics engines, and its assertions inspect the resulting runs, report
// and database.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	now: "2026-06-01T12:00:00Z"
//	store_id: demo.myshopify.com
//	upstream:
//	  orders:
//	    - '[{"id": 1, ...}]'   # page 1
//	    - '[{"id": 2, ...}]'   # page 2
//	  products:
//	    - '[...]'
//	failures:
//	  - { resource: orders, page: 2, status: 503, times: 1 }
//	flow:
//	  - sync: orders
//	    page_cap: 1
//	    expect: { status: capped, pages: 1 }
//	  - advance: 24h
//	  - analytics:
//	      knobs: { windowDays: "90" }
//	assertions:
//	  - { type: cursor, entity: orders, value: "2026-05-30T00:00:00Z" }
//	  - { type: row_count, table: orders, count: 2 }
//	  - { type: slow_movers, variants: [150] }
//
// # Assertion Types
//
//   - cursor: the stored cursor for an entity equals value, or is absent
//   - row_count: a table holds count rows for the scenario store
//   - run_count: the sync ledger holds count runs, optionally of one status
//   - top_sellers: the last report's top sellers, in order
//   - slow_movers: the last report's slow movers in order, optionally with
//     suggested prices
//
// Every scenario runs against a fresh database in a temporary directory.
package harness
