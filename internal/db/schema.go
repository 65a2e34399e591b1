package db

import "database/sql"

const schemaSQL = `
-- Key/value settings: credentials and small preferences
CREATE TABLE IF NOT EXISTS desk_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

-- Directory cache, one row per thread per listing scope
CREATE TABLE IF NOT EXISTS desk_threads (
  id INTEGER NOT NULL,
  scope TEXT NOT NULL DEFAULT 'mine',  -- "mine", "admin" or "board"
  title TEXT NOT NULL,
  tag TEXT NOT NULL,                   -- IN_PROGRESS, ADOPT, REJECT, END
  author TEXT,
  student_num INTEGER,
  created_at INTEGER,                  -- unix millis, null when unknown
  fetched_at INTEGER NOT NULL,         -- unix millis
  PRIMARY KEY (id, scope)
);

CREATE INDEX IF NOT EXISTS idx_desk_threads_created ON desk_threads(created_at);
`

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// InitSchema creates tables.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := initSchemaWith(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func initSchemaWith(db DBTX) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return err
	}
	return nil
}

// SchemaExists reports whether the desk schema is present.
func SchemaExists(db *sql.DB) (bool, error) {
	row := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='desk_threads'
	`)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
