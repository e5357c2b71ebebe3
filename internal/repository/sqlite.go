package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guest_sessions (
		guest_id TEXT PRIMARY KEY,
		scans INTEGER NOT NULL DEFAULT 0,
		history INTEGER NOT NULL DEFAULT 0,
		favorites INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_active DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_guest_sessions_last_active ON guest_sessions(last_active);
	`

	_, err := db.Exec(schema)
	return err
}
