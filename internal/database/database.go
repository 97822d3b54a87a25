package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection used by the booking core.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
	path   string
}

// NewDB opens (or creates) the database at path and ensures the schema.
//
// The DSN enables WAL journaling, a 5s busy timeout and immediate
// transactions: every write transaction acquires the write lock up front,
// so two concurrent booking attempts serialize at BEGIN and the loser of
// a prolonged contention gets SQLITE_BUSY, which the repository maps to a
// conflict instead of hanging.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger, path: path}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT UNIQUE NOT NULL,
			email TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_number TEXT UNIQUE NOT NULL,
			booking_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			total_hours INTEGER NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			advance_payment REAL NOT NULL DEFAULT 0,
			advance_payment_method TEXT,
			remaining_payment REAL NOT NULL DEFAULT 0,
			remaining_payment_method TEXT,
			remaining_cash_amount REAL NOT NULL DEFAULT 0,
			remaining_online_amount REAL NOT NULL DEFAULT 0,
			remaining_online_method TEXT,
			extra_charges TEXT NOT NULL DEFAULT '[]',
			discount_amount REAL NOT NULL DEFAULT 0,
			payment_proof_ref TEXT,
			pending_expires_at DATETIME,
			cancel_reason TEXT,
			customer_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(customer_id) REFERENCES customers(id)
		)`,

		// Slot rows exist only while the owning booking holds them;
		// cancellation deletes them. The unique index is the hard
		// backstop against double-booking.
		`CREATE TABLE IF NOT EXISTS booking_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL,
			slot_date DATETIME NOT NULL,
			slot_hour INTEGER NOT NULL CHECK(slot_hour >= 0 AND slot_hour <= 23),
			is_night_rate BOOLEAN NOT NULL DEFAULT 0,
			FOREIGN KEY(booking_id) REFERENCES bookings(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_date_hour ON booking_slots(slot_date, slot_hour)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_booking ON booking_slots(booking_id)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(booking_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_expiry ON bookings(status, pending_expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec %q: %w", query, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// isBusy reports whether err is a SQLite lock-wait timeout.
func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint &&
			(serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// dateOnly normalizes a timestamp to midnight UTC, the canonical form
// stored in booking_date and slot_date.
func dateOnly(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}
