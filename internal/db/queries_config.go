package db

import (
	"database/sql"
)

// ConfigEntry is one row of desk_config.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetConfig returns a config value, or "" when unset.
func GetConfig(db DBTX, key string) (string, error) {
	row := db.QueryRow("SELECT value FROM desk_config WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetConfig sets a config value.
func SetConfig(db DBTX, key, value string) error {
	_, err := db.Exec("INSERT OR REPLACE INTO desk_config (key, value) VALUES (?, ?)", key, value)
	return err
}

// DeleteConfig removes a config value.
func DeleteConfig(db DBTX, key string) error {
	_, err := db.Exec("DELETE FROM desk_config WHERE key = ?", key)
	return err
}

// GetAllConfig returns all config entries.
func GetAllConfig(db DBTX) ([]ConfigEntry, error) {
	rows, err := db.Query("SELECT key, value FROM desk_config ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ConfigEntry
	for rows.Next() {
		var entry ConfigEntry
		if err := rows.Scan(&entry.Key, &entry.Value); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
