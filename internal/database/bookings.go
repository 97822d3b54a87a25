package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pitchbook/internal/booking"
	"pitchbook/internal/models"
)

// BookingFilter narrows ListBookings results.
type BookingFilter struct {
	Status   string
	DateFrom time.Time
	DateTo   time.Time
	Phone    string
	Limit    int
	Offset   int
}

// CreateBooking inserts a booking in pending state together with its
// slot holds, all in one immediate transaction. The requested hours are
// re-checked against existing holds inside the transaction; any overlap
// returns booking.ConflictError and nothing is written. The unique
// (slot_date, slot_hour) index backs this check up at the schema level.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if len(b.Slots) == 0 {
		return fmt.Errorf("booking has no slots")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return &booking.ConflictError{Date: b.BookingDate}
		}
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Re-check under lock; the pre-submission availability check is
	// advisory only.
	taken, err := conflictingHoursTx(ctx, tx, b.BookingDate, b.HeldHours())
	if err != nil {
		return fmt.Errorf("check slots: %w", err)
	}
	if len(taken) > 0 {
		return &booking.ConflictError{Date: b.BookingDate, Hours: taken}
	}

	customerID, err := upsertCustomerTx(ctx, tx, b.CustomerName, b.CustomerPhone, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	b.CustomerID = customerID

	extraJSON, err := marshalExtraCharges(b.ExtraCharges)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (
			booking_number, booking_date, status, total_hours, total_amount,
			advance_payment, advance_payment_method,
			remaining_payment, remaining_payment_method,
			remaining_cash_amount, remaining_online_amount,
			extra_charges, discount_amount, pending_expires_at,
			customer_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookingNumber, dateOnly(b.BookingDate), b.Status, b.TotalHours, b.TotalAmount,
		b.AdvancePayment, b.AdvancePaymentMethod,
		b.RemainingPayment, b.RemainingPaymentMethod,
		b.RemainingCashAmount, b.RemainingOnlineAmount,
		extraJSON, b.DiscountAmount, b.PendingExpiresAt,
		customerID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	bookingID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = bookingID

	if err := insertSlotsTx(ctx, tx, bookingID, b.Slots); err != nil {
		if isUniqueViolation(err) {
			return &booking.ConflictError{Date: b.BookingDate, Hours: b.HeldHours()}
		}
		return fmt.Errorf("insert slots: %w", err)
	}
	for i := range b.Slots {
		b.Slots[i].BookingID = bookingID
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return &booking.ConflictError{Date: b.BookingDate, Hours: b.HeldHours()}
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func conflictingHoursTx(ctx context.Context, tx *sql.Tx, date time.Time, hours []int) ([]int, error) {
	if len(hours) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hours)), ",")
	args := make([]interface{}, 0, len(hours)+1)
	args = append(args, dateOnly(date))
	for _, h := range hours {
		args = append(args, h)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT slot_hour FROM booking_slots
		WHERE slot_date = ? AND slot_hour IN (`+placeholders+`)
		ORDER BY slot_hour`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		taken = append(taken, h)
	}
	return taken, rows.Err()
}

func insertSlotsTx(ctx context.Context, tx *sql.Tx, bookingID int64, slots []models.BookingSlot) error {
	query := `INSERT INTO booking_slots (booking_id, slot_date, slot_hour, is_night_rate) VALUES `
	args := make([]interface{}, 0, len(slots)*4)
	for i, s := range slots {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, bookingID, dateOnly(s.SlotDate), s.SlotHour, s.IsNightRate)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetBooking returns a booking with its customer and slots.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := db.scanOneBooking(ctx, "b.id = ?", id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &booking.NotFoundError{BookingID: id}
	}
	return b, nil
}

// GetBookingByNumber returns a booking by its human-readable number.
func (db *DB) GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error) {
	b, err := db.scanOneBooking(ctx, "b.booking_number = ?", number)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &booking.NotFoundError{}
	}
	return b, nil
}

const bookingColumns = `
	b.id, b.booking_number, b.booking_date, b.status, b.total_hours, b.total_amount,
	b.advance_payment, b.advance_payment_method,
	b.remaining_payment, b.remaining_payment_method,
	b.remaining_cash_amount, b.remaining_online_amount, b.remaining_online_method,
	b.extra_charges, b.discount_amount, b.pending_expires_at,
	b.customer_id, c.name, c.phone, b.created_at, b.updated_at`

func (db *DB) scanOneBooking(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN customers c ON c.id = b.customer_id
		WHERE `+where, arg)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}

	if err := db.loadSlots(ctx, b); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var advMethod, remMethod, onlineMethod sql.NullString
	var extraJSON string
	var expiresAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.BookingNumber, &b.BookingDate, &b.Status, &b.TotalHours, &b.TotalAmount,
		&b.AdvancePayment, &advMethod,
		&b.RemainingPayment, &remMethod,
		&b.RemainingCashAmount, &b.RemainingOnlineAmount, &onlineMethod,
		&extraJSON, &b.DiscountAmount, &expiresAt,
		&b.CustomerID, &b.CustomerName, &b.CustomerPhone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.AdvancePaymentMethod = advMethod.String
	b.RemainingPaymentMethod = remMethod.String
	b.RemainingOnlineMethod = onlineMethod.String
	if expiresAt.Valid {
		t := expiresAt.Time
		b.PendingExpiresAt = &t
	}
	charges, err := unmarshalExtraCharges(extraJSON)
	if err != nil {
		return nil, err
	}
	b.ExtraCharges = charges
	return &b, nil
}

func (db *DB) loadSlots(ctx context.Context, b *models.Booking) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, slot_date, slot_hour, is_night_rate
		FROM booking_slots WHERE booking_id = ? ORDER BY slot_hour`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	b.Slots = nil
	for rows.Next() {
		var s models.BookingSlot
		if err := rows.Scan(&s.ID, &s.BookingID, &s.SlotDate, &s.SlotHour, &s.IsNightRate); err != nil {
			return err
		}
		b.Slots = append(b.Slots, s)
	}
	return rows.Err()
}

// ApproveBooking transitions pending -> approved. Any other current
// status returns booking.InvalidTransitionError.
func (db *DB) ApproveBooking(ctx context.Context, id int64, now time.Time) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := bookingStatusTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if status != models.StatusPending {
		return nil, &booking.InvalidTransitionError{BookingID: id, From: status, To: models.StatusApproved}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings SET status = ?, pending_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.StatusApproved, now, id, models.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetBooking(ctx, id)
}

// CancelBooking transitions any non-terminal booking to cancelled and
// releases its slot holds. Cancelling a terminal booking fails with
// booking.InvalidTransitionError.
func (db *DB) CancelBooking(ctx context.Context, id int64, reason string, now time.Time) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := bookingStatusTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if status == models.StatusCompleted || status == models.StatusCancelled {
		return nil, &booking.InvalidTransitionError{BookingID: id, From: status, To: models.StatusCancelled}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, cancel_reason = ?, updated_at = ? WHERE id = ?`,
		models.StatusCancelled, reason, now, id,
	); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_slots WHERE booking_id = ?`, id); err != nil {
		return nil, fmt.Errorf("release slots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetBooking(ctx, id)
}

func bookingStatusTx(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", &booking.NotFoundError{BookingID: id}
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// ExpirePendingBookings cancels every pending booking whose expiry
// timestamp has passed and releases its slots. The status is re-checked
// inside the transaction, so a booking approved between scan and write
// is left alone, and re-running the sweep is a no-op.
func (db *DB) ExpirePendingBookings(ctx context.Context, now time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM bookings
		WHERE status = ? AND pending_expires_at IS NOT NULL AND pending_expires_at <= ?`,
		models.StatusPending, now,
	)
	if err != nil {
		return 0, fmt.Errorf("scan expired: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, models.StatusCancelled, now)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = ?, cancel_reason = 'pending hold expired', updated_at = ?
		WHERE id IN (`+placeholders+`) AND status = 'pending'`, args...)
	if err != nil {
		return 0, fmt.Errorf("expire bookings: %w", err)
	}
	expired, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM booking_slots WHERE booking_id IN (`+placeholders+`)`, args[2:]...); err != nil {
		return 0, fmt.Errorf("release slots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return expired, nil
}

// DayHolds returns the status of the booking holding each hour on a
// date. Hours without a hold are absent from the map.
func (db *DB) DayHolds(ctx context.Context, date time.Time) (map[int]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT bs.slot_hour, b.status
		FROM booking_slots bs
		JOIN bookings b ON b.id = bs.booking_id
		WHERE bs.slot_date = ?`, dateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("query holds: %w", err)
	}
	defer rows.Close()

	holds := make(map[int]string)
	for rows.Next() {
		var hour int
		var status string
		if err := rows.Scan(&hour, &status); err != nil {
			return nil, err
		}
		holds[hour] = status
	}
	return holds, rows.Err()
}

// ListBookings returns bookings matching the filter, newest first.
func (db *DB) ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN customers c ON c.id = b.customer_id
		WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND b.status = ?"
		args = append(args, filter.Status)
	}
	if !filter.DateFrom.IsZero() {
		query += " AND b.booking_date >= ?"
		args = append(args, dateOnly(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		query += " AND b.booking_date <= ?"
		args = append(args, dateOnly(filter.DateTo))
	}
	if filter.Phone != "" {
		query += " AND c.phone = ?"
		args = append(args, filter.Phone)
	}
	query += " ORDER BY b.created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		if err := db.loadSlots(ctx, &bookings[i]); err != nil {
			return nil, fmt.Errorf("load slots: %w", err)
		}
	}
	return bookings, nil
}

func marshalExtraCharges(charges []models.ExtraCharge) (string, error) {
	if len(charges) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(charges)
	if err != nil {
		return "", fmt.Errorf("marshal extra charges: %w", err)
	}
	return string(data), nil
}

func unmarshalExtraCharges(data string) ([]models.ExtraCharge, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var charges []models.ExtraCharge
	if err := json.Unmarshal([]byte(data), &charges); err != nil {
		return nil, fmt.Errorf("unmarshal extra charges: %w", err)
	}
	return charges, nil
}
