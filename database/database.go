package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver
)

// InitDB opens the database at dbPath and ensures the schema exists.
func InitDB(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; one pooled connection also keeps
	// :memory: databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// WAL for better concurrent reads; the store itself serializes writes
	// per call through transactions.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Println("Successfully connected to the database at", dbPath)
	return db, nil
}

func createTables(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS items (
        id               INTEGER PRIMARY KEY AUTOINCREMENT,
        topic            TEXT NOT NULL,
        summary          TEXT NOT NULL,
        full_content     TEXT DEFAULT '',
        link             TEXT DEFAULT '',
        image_url        TEXT DEFAULT '',
        video_url        TEXT DEFAULT '',
        status           TEXT NOT NULL DEFAULT 'pending',
        priority         TEXT NOT NULL DEFAULT 'normal',
        approved_by      TEXT DEFAULT '',
        approved_at      TEXT DEFAULT '',
        approval_type    TEXT DEFAULT '',
        rejection_reason TEXT DEFAULT '',
        source           TEXT DEFAULT 'webhook',
        tags             TEXT DEFAULT '[]',
        created_at       TEXT NOT NULL,
        updated_at       TEXT NOT NULL,
        scheduled_for    TEXT DEFAULT '',
        completed_at     TEXT DEFAULT '',
        error_message    TEXT DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS channel_attempts (
        id               INTEGER PRIMARY KEY AUTOINCREMENT,
        item_id          INTEGER NOT NULL,
        channel          TEXT NOT NULL,
        status           TEXT NOT NULL DEFAULT 'pending',
        external_post_id TEXT DEFAULT '',
        external_url     TEXT DEFAULT '',
        posted_at        TEXT DEFAULT '',
        error_message    TEXT DEFAULT '',
        retry_count      INTEGER DEFAULT 0,
        created_at       TEXT NOT NULL,
        updated_at       TEXT NOT NULL,
        UNIQUE (item_id, channel),
        FOREIGN KEY (item_id) REFERENCES items(id)
    );

    CREATE TABLE IF NOT EXISTS audit_log (
        id        INTEGER PRIMARY KEY AUTOINCREMENT,
        item_id   INTEGER,
        action    TEXT NOT NULL,
        details   TEXT DEFAULT '{}',
        timestamp TEXT NOT NULL,
        FOREIGN KEY (item_id) REFERENCES items(id)
    );

    CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
    CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at);
    CREATE INDEX IF NOT EXISTS idx_items_scheduled ON items(scheduled_for);
    CREATE INDEX IF NOT EXISTS idx_attempts_item_id ON channel_attempts(item_id);
    CREATE INDEX IF NOT EXISTS idx_attempts_status ON channel_attempts(status);
    CREATE INDEX IF NOT EXISTS idx_audit_item_id ON audit_log(item_id);
    `

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
