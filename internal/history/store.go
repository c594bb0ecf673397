package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"

	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one delivery attempt of a notification on one channel.
type Entry struct {
	ID        int64     `json:"id"`
	Account   string    `json:"account"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout(5000): wait up to 5s when another watcher holds the write lock
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT NOT NULL,
			channel TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (account, channel, title, message, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Account, e.Channel, e.Title, e.Message, e.Status, errText, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// means DefaultLimit; limits above MaxLimit are clamped.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, channel, title, message, status, error, created_at
		FROM deliveries
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			errText   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Account, &e.Channel, &e.Title, &e.Message, &e.Status, &errText, &createdAt); err != nil {
			return nil, err
		}
		e.Error = errText.String
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
