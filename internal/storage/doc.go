// Package storage implements vault.Store.
//
// Drivers:
//   - "memory": process-local maps, lost on restart (tests, dry runs)
//   - "sqlite": single-file database via modernc.org/sqlite (default)
//   - "postgres": shared database via pgx
package storage
