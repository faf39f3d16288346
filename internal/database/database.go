package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/events"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// timeLayout keeps a fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	*sql.DB
	hub    *events.Hub
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite допускает одного писателя; одно соединение также сохраняет :memory: базу
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{
		DB:     sqlDB,
		hub:    events.NewHub(),
		logger: logger,
		now:    time.Now,
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Таблица бронирований
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL,
            initiator_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            total_price REAL NOT NULL DEFAULT 0,
            payment_ref TEXT,
            listing_title TEXT,
            initiator_name TEXT,
            initiator_phone TEXT,
            recipient_name TEXT,
            recipient_phone TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		// Долговременное хранилище ключ-значение (очередь офлайн-мутаций)
		`CREATE TABLE IF NOT EXISTS kv_store (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_initiator ON bookings(initiator_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_recipient ON bookings(recipient_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Hub exposes the realtime channel rows are published on.
func (db *DB) Hub() *events.Hub {
	return db.hub
}

// Ping reports whether the store answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) timestamp() string {
	return db.now().UTC().Format(timeLayout)
}

// storeError converts driver failures into the typed store error.
func storeError(message string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}

	out := &domain.StoreError{Message: message, Details: err.Error(), Err: err}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		out.Code = strconv.Itoa(int(sqlErr.ExtendedCode))
		switch sqlErr.Code {
		case sqlite3.ErrConstraint:
			out.Hint = "check unique and required columns"
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			out.Hint = "database is busy, retry later"
		}
	}
	if errors.Is(err, ErrNotFound) {
		out.Code = "not_found"
	}
	return out
}
