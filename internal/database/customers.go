package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pitchbook/internal/models"
)

// upsertCustomerTx creates or refreshes the customer row for a phone
// number. Phone is the identity key; a repeat booking from the same
// phone updates the stored name instead of creating a duplicate row.
func upsertCustomerTx(ctx context.Context, tx *sql.Tx, name, phone string, now time.Time) (int64, error) {
	if phone == "" {
		return 0, fmt.Errorf("customer phone is required")
	}
	if name == "" {
		return 0, fmt.Errorf("customer name is required")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO customers (name, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		name, phone, now, now,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE phone = ?`, phone).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetCustomerByPhone returns the customer for a phone number, or nil
// when none exists.
func (db *DB) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var c models.Customer
	var email sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers WHERE phone = ?`, phone,
	).Scan(&c.ID, &c.Name, &c.Phone, &email, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	return &c, nil
}

// CustomerBookings returns all bookings made under a phone number,
// newest first.
func (db *DB) CustomerBookings(ctx context.Context, phone string) ([]models.Booking, error) {
	return db.ListBookings(ctx, BookingFilter{Phone: phone})
}
