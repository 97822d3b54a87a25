package database

import (
	"context"
	"testing"
	"time"

	"pitchbook/internal/booking"
	"pitchbook/internal/models"
	"pitchbook/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletePayment_Split(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{18, 19, 20, 21}, 4000, 500)
	require.NoError(t, db.CreateBooking(ctx, b))
	_, err := db.ApproveBooking(ctx, b.ID, now)
	require.NoError(t, err)

	updated, balanceBefore, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount:      3500,
		Method:      models.MethodCash,
		SplitCash:   2000,
		SplitOnline: 1500,
	}, now)
	require.NoError(t, err)

	assert.InDelta(t, 3500, balanceBefore, 0.001)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Zero(t, updated.RemainingPayment)
	assert.InDelta(t, 2000, updated.RemainingCashAmount, 0.001)
	assert.InDelta(t, 1500, updated.RemainingOnlineAmount, 0.001)
	assert.InDelta(t, 4000, updated.TotalAmount, 0.001)
	assert.InDelta(t, 4000, updated.TotalCollected(), 0.001)

	// Completed bookings keep their slot holds.
	holds, err := db.DayHolds(ctx, date)
	require.NoError(t, err)
	assert.Len(t, holds, 4)
	assert.Equal(t, models.StatusCompleted, holds[18])
}

func TestCompletePayment_SingleMethodLandsByMethod(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{10}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	updated, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount:       1000,
		Method:       models.MethodOnline,
		OnlineMethod: "upi",
	}, now)
	require.NoError(t, err)

	assert.Zero(t, updated.RemainingCashAmount)
	assert.InDelta(t, 1000, updated.RemainingOnlineAmount, 0.001)
	assert.Equal(t, "upi", updated.RemainingOnlineMethod)
}

func TestCompletePayment_ExtraChargesAndDiscount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{18, 19, 20, 21}, 4000, 500)
	require.NoError(t, db.CreateBooking(ctx, b))

	// Balance 3500, extras 600, discount 100: payable 4000.
	updated, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount: 4000,
		Method: models.MethodCash,
		ExtraCharges: []models.ExtraCharge{
			{Description: "floodlights", Amount: 400},
			{Description: "extra ball", Amount: 200},
		},
		Discount: 100,
	}, now)
	require.NoError(t, err)

	assert.InDelta(t, 4500, updated.TotalAmount, 0.001)
	assert.InDelta(t, 100, updated.DiscountAmount, 0.001)
	assert.InDelta(t, 600, updated.TotalExtraCharges(), 0.001)
	assert.InDelta(t, 4500, updated.TotalCollected(), 0.001)
}

func TestCompletePayment_DiscountClampedToExtras(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{10}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	// Discount exceeds the extras, so only the extras are forgiven and
	// the base balance is still owed in full.
	updated, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount:       1000,
		Method:       models.MethodCash,
		ExtraCharges: []models.ExtraCharge{{Description: "extra ball", Amount: 200}},
		Discount:     500,
	}, now)
	require.NoError(t, err)

	assert.InDelta(t, 1000, updated.TotalAmount, 0.001)
	assert.InDelta(t, 200, updated.DiscountAmount, 0.001)
}

func TestCompletePayment_AmountMismatchRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{18, 19, 20, 21}, 4000, 500)
	require.NoError(t, db.CreateBooking(ctx, b))

	_, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount: 3000,
		Method: models.MethodCash,
	}, now)
	var mismatch *payment.AmountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.InDelta(t, 3500, mismatch.Expected, 0.001)
	assert.InDelta(t, 3000, mismatch.Received, 0.001)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.InDelta(t, 3500, got.RemainingPayment, 0.001)
}

func TestCompletePayment_SplitMismatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{10}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	_, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount:      1000,
		Method:      models.MethodCash,
		SplitCash:   800,
		SplitOnline: 100,
	}, now)
	var split *payment.SplitMismatchError
	require.ErrorAs(t, err, &split)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestCompletePayment_EpsilonTolerance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{10}, 1000.005, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	_, _, err := db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount: 1000.00,
		Method: models.MethodCash,
	}, now)
	require.NoError(t, err)
}

func TestCompletePayment_TerminalGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{10}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))
	_, err := db.CancelBooking(ctx, b.ID, "rain", now)
	require.NoError(t, err)

	_, _, err = db.CompletePayment(ctx, b.ID, payment.CompletePaymentInput{
		Amount: 1000,
		Method: models.MethodCash,
	}, now)
	var transition *booking.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.StatusCancelled, transition.From)
}

func TestRevenueSummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)

	first := testBooking(date, []int{10, 11}, 2000, 500)
	require.NoError(t, db.CreateBooking(ctx, first))
	_, _, err := db.CompletePayment(ctx, first.ID, payment.CompletePaymentInput{
		Amount:      1500,
		Method:      models.MethodCash,
		SplitCash:   1000,
		SplitOnline: 500,
	}, now)
	require.NoError(t, err)

	second := testBooking(date, []int{14}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, second))
	_, _, err = db.CompletePayment(ctx, second.ID, payment.CompletePaymentInput{
		Amount: 1000,
		Method: models.MethodOnline,
	}, now)
	require.NoError(t, err)

	// Still pending, must not count.
	third := testBooking(date, []int{16}, 1000, 500)
	require.NoError(t, db.CreateBooking(ctx, third))

	summary, err := db.RevenueSummary(ctx, date, date)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CompletedBookings)
	assert.InDelta(t, 500, summary.AdvanceTotal, 0.001)
	assert.InDelta(t, 1000, summary.CashTotal, 0.001)
	assert.InDelta(t, 1500, summary.OnlineTotal, 0.001)
	assert.InDelta(t, 3000, summary.Total, 0.001)

	outside, err := db.RevenueSummary(ctx, date.AddDate(0, 0, 1), date.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, outside.CompletedBookings)
	assert.Zero(t, outside.Total)
}
