// Package store archives completed runs in SQLite.
//
// Each run is stored with:
//   - runs: id, input source, worker count, lock policy, digest, counters
//   - accounts: the final snapshot, with its position in snapshot order
//   - deposits: the deposit history with dispute states
//   - rejections: rejected transaction counts per error code
//
// Money is stored as the raw fixed-point integer (see money.Money.Raw).
// The account total is never stored; it is recomputed on read.
//
// Run ids are UUIDv7 strings, so ordering by id matches creation order;
// listings order by started_at, then id.
//
// # Database Configuration
//
// Connection parameters in the DSN put every connection in WAL mode with
// synchronous=NORMAL, a 5 second busy timeout and foreign keys enforced,
// which the ON DELETE CASCADE clauses depend on.
package store
