package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "usage.db"

// sqliteBackend stores the same flat tables as the JSON files, one row per
// counter key and one row per pro chat.
type sqliteBackend struct {
	db *sql.DB
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		BEGIN;

		CREATE TABLE IF NOT EXISTS usage_counters (
		  key TEXT PRIMARY KEY,   -- <chat_id>:<yyyy-mm-dd>
		  count INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS pro_groups (
		  chat_id INTEGER PRIMARY KEY,
		  added_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		COMMIT;
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func newSQLiteBackend(dataDir string) (*sqliteBackend, error) {
	db, err := openDB(filepath.Join(dataDir, sqliteFileName))
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) Load() (usageSnapshot, error) {
	snapshot := usageSnapshot{
		Counters: make(map[string]int),
		Pro:      make(map[int64]struct{}),
	}

	counters, err := loadCounters(s.db)
	if err != nil {
		return snapshot, err
	}
	snapshot.Counters = counters

	pro, err := loadProGroups(s.db)
	if err != nil {
		return snapshot, err
	}
	snapshot.Pro = pro
	return snapshot, nil
}

func loadCounters(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT key, count FROM usage_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counters[key] = count
	}
	return counters, rows.Err()
}

func loadProGroups(db *sql.DB) (map[int64]struct{}, error) {
	rows, err := db.Query(`SELECT chat_id FROM pro_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pro := make(map[int64]struct{})
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		pro[chatID] = struct{}{}
	}
	return pro, rows.Err()
}

// SaveCounters replaces the whole table inside one transaction.
func (s *sqliteBackend) SaveCounters(counters map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM usage_counters`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO usage_counters (key, count) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, count := range counters {
		if _, err := stmt.Exec(key, count); err != nil {
			return fmt.Errorf("insert counter %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteBackend) SavePro(pro map[int64]struct{}) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Ids already present keep their added_at.
	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS pro_keep (chat_id INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM pro_keep`); err != nil {
		return err
	}
	for chatID := range pro {
		if _, err := tx.Exec(`INSERT INTO pro_keep (chat_id) VALUES (?)`, chatID); err != nil {
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO pro_groups (chat_id)
			VALUES (?)
			ON CONFLICT DO NOTHING
		`, chatID)
		if err != nil {
			return fmt.Errorf("insert pro group %d: %w", chatID, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM pro_groups WHERE chat_id NOT IN (SELECT chat_id FROM pro_keep)`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteBackend) Close() error {
	return s.db.Close()
}

func openUsageBackend(kind, dataDir string) (usageBackend, error) {
	switch kind {
	case "", "json":
		return newFileBackend(dataDir)
	case "sqlite":
		return newSQLiteBackend(dataDir)
	default:
		return nil, fmt.Errorf("unknown usage backend: %q", kind)
	}
}
