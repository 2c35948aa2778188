// Package engine drives a transaction stream through the ledger.
//
// A Source yields decoded transactions until io.EOF. Malformed records
// (errors wrapping ledger.ErrMalformedTransaction) are counted and
// skipped. Rejected transactions are counted per error code and logged at
// debug level. A fatal ledger error stops the run.
//
// Sequential mode:
// One goroutine owns one ledger and applies records in input order.
//
// Sharded mode (WithWorkers(n), n > 1):
// A dispatcher goroutine stamps each record with a logical sequence number
// from Clock and routes it to worker client%n over a bounded channel. Each
// worker owns a private ledger, so per-client order is preserved and no
// state is shared between workers. The dispatcher remembers which shard
// last received a deposit for each tx id. When a deposit reuses an id last
// routed to another shard, the dispatcher waits until that shard has
// applied it and asks whether the shard recorded it. If so, the record
// goes out marked foreign and the worker's ledger rejects it as a
// duplicate with the same checks a single ledger would run. If the earlier
// deposit was rejected, the id is free again. The final merge orders
// accounts by the sequence number of the transaction that created them,
// which makes the snapshot identical to sequential mode.
//
// Every run produces a Report carrying the snapshot, the deposit history,
// the counters and a SHA-256 digest of the rendered snapshot.
package engine
