// Package audit provides PostgreSQL-backed storage for notable realtime
// events. The server records order and notification traffic here; the bot's
// admin logs command reads it back.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/musika/commerce/internal/audit/migrations"
)

// Event is one persisted realtime event.
type Event struct {
	ID         int64
	EventType  string
	MerchantID string
	Level      string
	Payload    []byte
	CreatedAt  time.Time
}

// Store manages realtime events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL at dsn, verifies the connection, and applies
// any pending schema migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: database connection failed: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle without running migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// runMigrations applies the embedded schema migrations.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("audit: init migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("audit: load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("audit: create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("audit: apply migrations: %w", err)
	}
	log.Println("audit: schema migrations applied")
	return nil
}

// Record inserts one event. payload may be nil.
func (s *Store) Record(ctx context.Context, eventType, merchantID, level string, payload []byte) error {
	if level == "" {
		level = "info"
	}

	const query = `
		INSERT INTO realtime_events (event_type, merchant_id, level, payload)
		VALUES ($1, $2, $3, $4)`

	var payloadArg interface{}
	if len(payload) > 0 {
		payloadArg = payload
	}
	if _, err := s.db.ExecContext(ctx, query, eventType, merchantID, level, payloadArg); err != nil {
		return fmt.Errorf("audit: insert %s: %w", eventType, err)
	}
	return nil
}

// Recent returns the newest events, newest first. An empty level returns
// all levels.
func (s *Store) Recent(ctx context.Context, level string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, event_type, merchant_id, level, COALESCE(payload, 'null'::jsonb), created_at
		FROM realtime_events`
	args := []interface{}{}
	if level != "" {
		query += ` WHERE level = $1`
		args = append(args, level)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.MerchantID, &e.Level, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
