// Package database provides SQLite connectivity for deckd.
//
// It owns connection setup (WAL mode, busy timeout, single-writer
// pool), schema migrations from an embedded filesystem, and a health
// check hook for the API surface. All queries use parameterised
// statements and the database file is owner read/write only.
package database
