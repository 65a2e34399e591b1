package db

import (
	"database/sql"
	"time"

	"github.com/campusdesk/desk/internal/types"
)

// Cache scopes for desk_threads.
const (
	ScopeMine  = "mine"
	ScopeAdmin = "admin"
	ScopeBoard = "board"
)

// CachedThread is a cached directory row.
type CachedThread struct {
	types.Thread
	FetchedAt time.Time `json:"fetched_at"`
}

// UpsertThreads writes threads into the cache for scope.
func UpsertThreads(db *sql.DB, scope string, threads []types.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, thread := range threads {
		var createdAt any
		if !thread.CreatedAt.IsZero() {
			createdAt = thread.CreatedAt.UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT INTO desk_threads (id, scope, title, tag, author, student_num, created_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id, scope) DO UPDATE SET
			  title = excluded.title,
			  tag = excluded.tag,
			  author = excluded.author,
			  student_num = excluded.student_num,
			  created_at = excluded.created_at,
			  fetched_at = excluded.fetched_at
		`, thread.ID, scope, thread.Title, string(thread.Tag), nullableString(thread.Author),
			nullableInt(thread.StudentNum), createdAt, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// UpdateCachedTag records a server-confirmed tag change in every scope.
func UpdateCachedTag(db *sql.DB, id int64, tag types.StatusTag) error {
	_, err := db.Exec("UPDATE desk_threads SET tag = ? WHERE id = ?", string(tag), id)
	return err
}

// GetCachedThreads returns cached threads for scope, newest first.
func GetCachedThreads(db *sql.DB, scope string) ([]CachedThread, error) {
	rows, err := db.Query(`
		SELECT id, title, tag, author, student_num, created_at, fetched_at
		FROM desk_threads
		WHERE scope = ?
		ORDER BY created_at DESC, id DESC
	`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []CachedThread
	for rows.Next() {
		var (
			thread     CachedThread
			tag        string
			author     sql.NullString
			studentNum sql.NullInt64
			createdAt  sql.NullInt64
			fetchedAt  int64
		)
		if err := rows.Scan(&thread.ID, &thread.Title, &tag, &author, &studentNum, &createdAt, &fetchedAt); err != nil {
			return nil, err
		}
		thread.Tag = types.StatusTag(tag)
		thread.Author = author.String
		thread.StudentNum = studentNum.Int64
		if createdAt.Valid {
			thread.CreatedAt = types.Timestamp{Time: time.UnixMilli(createdAt.Int64)}
		}
		thread.FetchedAt = time.UnixMilli(fetchedAt)
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return threads, nil
}

// ClearCachedThreads drops every cached row, used on logout.
func ClearCachedThreads(db *sql.DB) error {
	_, err := db.Exec("DELETE FROM desk_threads")
	return err
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
