// Package storage is the member directory and operator audit log.
//
// Drivers:
//   - "sqlite": single database file (default, users.db)
//   - "postgres": server database addressed by DSN
//   - "file": JSON snapshot + JSONL journal, no database needed
//   - "memory": process-local, for tests and dry runs
package storage
