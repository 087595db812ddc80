package database

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// openPragmas run once per file on open. WAL keeps readers unblocked during
// writes; foreign_keys applies the declared constraints.
var openPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// OpenSQLite opens (or creates) the SQLite database file at path and returns
// it wrapped as a DB. The pool is pinned to a single connection; SQLite allows
// one writer at a time and the callers already serialize around it.
func OpenSQLite(path string, logger ectologger.Logger) (DB, error) {
	db, err := sqlx.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range openPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return NewDatabaseInstance(db, logger), nil
}
