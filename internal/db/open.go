package db

import (
	"database/sql"

	"github.com/campusdesk/desk/internal/core"

	_ "modernc.org/sqlite"
)

// OpenDatabase opens the local SQLite database and makes sure the schema exists.
func OpenDatabase(state core.StateDir) (*sql.DB, error) {
	if err := state.Ensure(); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", state.DBPath)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := InitSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
