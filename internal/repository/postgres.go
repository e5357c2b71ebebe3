package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guest_sessions (
		guest_id TEXT PRIMARY KEY,
		scans INTEGER NOT NULL DEFAULT 0,
		history INTEGER NOT NULL DEFAULT 0,
		favorites INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_active TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_guest_sessions_last_active ON guest_sessions(last_active);
	`

	_, err := db.Exec(schema)
	return err
}
