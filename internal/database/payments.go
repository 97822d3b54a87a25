package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pitchbook/internal/booking"
	"pitchbook/internal/models"
	"pitchbook/internal/payment"
)

// CompletePayment settles a booking's outstanding balance in one
// transaction. It reads the balance under the transaction's write lock,
// validates the offered amount and split against it, then marks the
// booking completed: the outstanding remaining_payment is driven to
// zero while the cash/online breakdown is recorded separately as the
// history of how that balance was paid. Any validation failure rolls
// the whole transaction back.
//
// Returns the updated booking and the balance outstanding before the
// payment was applied.
func (db *DB) CompletePayment(ctx context.Context, bookingID int64, in payment.CompletePaymentInput, now time.Time) (*models.Booking, float64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var balanceBefore, totalBefore, discountBefore float64
	var extraJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT status, remaining_payment, total_amount, discount_amount, extra_charges
		FROM bookings WHERE id = ?`, bookingID,
	).Scan(&status, &balanceBefore, &totalBefore, &discountBefore, &extraJSON)
	if err == sql.ErrNoRows {
		return nil, 0, &booking.NotFoundError{BookingID: bookingID}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load booking: %w", err)
	}

	if status != models.StatusPending && status != models.StatusApproved {
		return nil, 0, &booking.InvalidTransitionError{BookingID: bookingID, From: status, To: models.StatusCompleted}
	}

	var totalExtra float64
	for _, c := range in.ExtraCharges {
		if c.Amount < 0 {
			return nil, 0, fmt.Errorf("extra charge %q: amount must not be negative", c.Description)
		}
		totalExtra += c.Amount
	}
	clampedDiscount := payment.ClampDiscount(in.Discount, totalExtra)

	expectedPayable := balanceBefore + totalExtra - clampedDiscount
	if !payment.AmountsEqual(in.Amount, expectedPayable) {
		return nil, 0, &payment.AmountMismatchError{Expected: expectedPayable, Received: in.Amount}
	}

	cashAmount, onlineAmount := in.Amount, 0.0
	if in.Method == models.MethodOnline {
		cashAmount, onlineAmount = 0, in.Amount
	}
	if in.HasSplit() {
		if !payment.AmountsEqual(in.SplitCash+in.SplitOnline, in.Amount) {
			return nil, 0, &payment.SplitMismatchError{Cash: in.SplitCash, Online: in.SplitOnline, Payment: in.Amount}
		}
		cashAmount, onlineAmount = in.SplitCash, in.SplitOnline
	}

	existingCharges, err := unmarshalExtraCharges(extraJSON)
	if err != nil {
		return nil, 0, err
	}
	mergedJSON, err := marshalExtraCharges(append(existingCharges, in.ExtraCharges...))
	if err != nil {
		return nil, 0, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings SET
			status = ?,
			remaining_payment = 0,
			remaining_payment_method = ?,
			remaining_cash_amount = ?,
			remaining_online_amount = ?,
			remaining_online_method = ?,
			extra_charges = ?,
			total_amount = ?,
			discount_amount = ?,
			payment_proof_ref = ?,
			pending_expires_at = NULL,
			updated_at = ?
		WHERE id = ?`,
		models.StatusCompleted,
		in.Method,
		cashAmount,
		onlineAmount,
		in.OnlineMethod,
		mergedJSON,
		totalBefore+totalExtra-clampedDiscount,
		discountBefore+clampedDiscount,
		in.ProofRef,
		now,
		bookingID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("apply payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	b, err := db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	return b, balanceBefore, nil
}

// RevenueSummary aggregates collected amounts over completed bookings
// whose date falls in [from, to]. Collected revenue is advance + cash +
// online; the zeroed remaining_payment column is deliberately ignored.
func (db *DB) RevenueSummary(ctx context.Context, from, to time.Time) (*models.RevenueSummary, error) {
	summary := &models.RevenueSummary{From: dateOnly(from), To: dateOnly(to)}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(advance_payment), 0),
		       COALESCE(SUM(remaining_cash_amount), 0),
		       COALESCE(SUM(remaining_online_amount), 0),
		       COALESCE(SUM(discount_amount), 0)
		FROM bookings
		WHERE status = ? AND booking_date >= ? AND booking_date <= ?`,
		models.StatusCompleted, dateOnly(from), dateOnly(to),
	).Scan(
		&summary.CompletedBookings,
		&summary.AdvanceTotal,
		&summary.CashTotal,
		&summary.OnlineTotal,
		&summary.DiscountTotal,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate revenue: %w", err)
	}

	summary.Total = summary.AdvanceTotal + summary.CashTotal + summary.OnlineTotal
	return summary, nil
}
