package engine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteModuleName is the descriptor name of the built-in engine.
const SQLiteModuleName = "sqlite"

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
	pragmaForeignKeysOn  = `PRAGMA foreign_keys=ON`
	pragmaBusyTimeout    = `PRAGMA busy_timeout=5000`
)

func init() {
	Register(SQLiteModuleName, sqliteModule{})
}

// sqliteModule adapts modernc.org/sqlite to the engine capability
// surface. The adapter assumes a single logical caller, so the pool is
// pinned to one connection to keep transaction state on one handle.
type sqliteModule struct{}

func (sqliteModule) OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{pragmaJournalModeWAL, pragmaForeignKeysOn, pragmaBusyTimeout} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite %q: %w", stmt, err)
		}
	}
	return db, nil
}

func (sqliteModule) Capabilities() Capabilities {
	return Capabilities{
		CapOpenDatabase: "database/sql over modernc.org/sqlite",
		CapSnapshot:     "file image snapshot after wal checkpoint",
	}
}
