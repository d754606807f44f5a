// Package store provides SQLite-backed storage for scan runs.
//
// The catalog holds:
//   - Scans: one row per run (run id, seq, scene, scene digest, override)
//   - Location keys: per location of a run, the key digest, canonical key
//     JSON, counts, group and prototype, and the debug dump
//
// # Ordering
//
//   - Runs order by seq INTEGER (logical clock), never timestamps
//   - Location queries use ORDER BY location COLLATE BINARY so that two
//     reads of one run are identical
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Key digests and canonical JSON come from internal/ir (RFC 8785 canonical
// JSON and SHA-256 with domain separation).
package store
