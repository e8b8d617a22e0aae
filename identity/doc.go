// Package identity defines the account model and the [Store] contract the
// engine persists accounts through.
//
// Three implementations ship with the module:
//
//   - identity/memory: mutex-guarded maps, for tests and single-process demos
//   - identity/sqlite: modernc.org/sqlite, one file, WAL journal
//   - identity/postgres: pgx connection pool
//
// All of them share the conformance suite in identity/identitytest.
package identity
