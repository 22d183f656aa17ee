package sqlutil

import "database/sql"

// A Writer serialises database writes where the engine needs it (SQLite
// allows only one writer at a time) and is a pass-through where it doesn't.
//
// Do calls f when it is safe to write:
//   - with db and txn set, f runs inside txn;
//   - with only db set, f runs inside a new transaction on db;
//   - with neither set, f runs with a nil txn, e.g. for a single prepared
//     statement.
//
// Calling Do from within f on the same Writer deadlocks.
type Writer interface {
	Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error
}
