// Package store provides SQLite-backed history for sync runs.
//
// Three tables:
//   - snapshots: the last known edit state of each page (conflict baseline)
//   - runs: one row per executed or previewed sync with its result counts
//   - run_ops: the edit script of each run, one row per op
//
// Runs are ordered by a logical seq (max+1 inside the writing transaction),
// never by wall time, so listings are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Structured columns (block etags) are stored as canonical JSON produced by
// ir.MarshalCanonical.
package store
