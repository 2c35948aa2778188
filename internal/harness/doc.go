// Package harness runs ledger conformance scenarios.
//
// A scenario is a YAML file listing transactions, the outcome each one
// must produce ("ok" or an error code) and assertions on the final
// accounts and deposit states. Run applies the steps to a fresh ledger,
// then replays them through a sharded engine and fails if the snapshots
// differ.
//
// # Golden files
//
// The trace and final snapshot are rendered as indented JSON and compared
// against a golden file, so any behavioural drift shows up as a diff.
// In tests use RunWithGolden; the CLI uses CompareGolden and UpdateGolden
// with golden/<name>.golden next to each scenario file.
//
// # Example
//
//	name: dispute_then_resolve
//	description: A resolved dispute restores available funds
//	steps:
//	  - {type: deposit, client: 1, tx: 1, amount: "5"}
//	  - {type: dispute, client: 1, tx: 1}
//	  - {type: resolve, client: 1, tx: 1}
//	  - {type: resolve, client: 1, tx: 1, expect: INVALID_DISPUTE_STATE}
//	accounts:
//	  - {client: 1, available: "5", held: "0", locked: false}
package harness
