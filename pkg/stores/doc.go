// Package stores persists the environment index. It keeps one record
// per throwaway environment plus an audit trail of up and down runs in
// a SQLite database with WAL mode and embedded schema migrations.
package stores
