// Package store keeps a SQLite journal of harness runs.
//
// Each invocation of the harness appends one run and the checks it
// reported:
//   - runs: id, session, planned count, bail flag and reason, timing
//   - checks: one row per reported check, keyed by (run_id, idx)
//
// The journal is write-once per run. It does not summarise across runs.
//
// # Database Configuration
//
//   - WAL mode so a CI job can read while another run writes
//   - synchronous=NORMAL
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
package store
