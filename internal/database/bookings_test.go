package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pitchbook/internal/booking"
	"pitchbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var bookingSeq int

func testBooking(date time.Time, hours []int, total, advance float64) *models.Booking {
	bookingSeq++
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	expires := now.Add(30 * time.Minute)
	slots := make([]models.BookingSlot, 0, len(hours))
	for _, h := range hours {
		slots = append(slots, models.BookingSlot{SlotDate: date, SlotHour: h})
	}
	return &models.Booking{
		BookingNumber:    fmt.Sprintf("PB-TEST-%04d", bookingSeq),
		BookingDate:      date,
		Status:           models.StatusPending,
		TotalHours:       len(hours),
		TotalAmount:      total,
		AdvancePayment:   advance,
		RemainingPayment: total - advance,
		PendingExpiresAt: &expires,
		CustomerName:     "Arun Kumar",
		CustomerPhone:    "9876543210",
		Slots:            slots,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateBooking_RejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	first := testBooking(date, []int{18, 19, 20}, 3000, 500)
	require.NoError(t, db.CreateBooking(ctx, first))
	require.NotZero(t, first.ID)

	second := testBooking(date, []int{20, 21}, 2000, 0)
	err := db.CreateBooking(ctx, second)

	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{20}, conflict.Hours)

	// The losing attempt must leave nothing behind.
	holds, err := db.DayHolds(ctx, date)
	require.NoError(t, err)
	assert.Len(t, holds, 3)
}

func TestCreateBooking_DifferentDatesDoNotConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day1 := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, db.CreateBooking(ctx, testBooking(day1, []int{10}, 1000, 0)))
	require.NoError(t, db.CreateBooking(ctx, testBooking(day2, []int{10}, 1000, 0)))
}

func TestCreateBooking_ReleasedSlotsReusable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	first := testBooking(date, []int{18, 19}, 2000, 0)
	require.NoError(t, db.CreateBooking(ctx, first))

	_, err := db.CancelBooking(ctx, first.ID, "customer call", now)
	require.NoError(t, err)

	second := testBooking(date, []int{18, 19}, 2000, 0)
	require.NoError(t, db.CreateBooking(ctx, second))
}

func TestCreateBooking_ConcurrentOneWinner(t *testing.T) {
	db := newTestDB(t)
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		b := testBooking(date, []int{14, 15}, 2000, 0)
		wg.Add(1)
		go func(i int, b *models.Booking) {
			defer wg.Done()
			errs[i] = db.CreateBooking(context.Background(), b)
		}(i, b)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var conflict *booking.ConflictError
		require.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, winners)
}

func TestGetBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	created := testBooking(date, []int{18, 19}, 2000, 500)
	require.NoError(t, db.CreateBooking(ctx, created))

	got, err := db.GetBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.BookingNumber, got.BookingNumber)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "Arun Kumar", got.CustomerName)
	assert.Equal(t, "9876543210", got.CustomerPhone)
	assert.Equal(t, []int{18, 19}, got.HeldHours())
	require.NotNil(t, got.PendingExpiresAt)

	byNumber, err := db.GetBookingByNumber(ctx, created.BookingNumber)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byNumber.ID)

	_, err = db.GetBooking(ctx, 99999)
	var notFound *booking.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestApproveBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{9}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	approved, err := db.ApproveBooking(ctx, b.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Nil(t, approved.PendingExpiresAt)

	_, err = db.ApproveBooking(ctx, b.ID, now)
	var transition *booking.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.StatusApproved, transition.From)
}

func TestCancelBooking_TerminalGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	b := testBooking(date, []int{9}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, b))

	cancelled, err := db.CancelBooking(ctx, b.ID, "rain", now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.Slots)

	_, err = db.CancelBooking(ctx, b.ID, "again", now)
	var transition *booking.InvalidTransitionError
	assert.True(t, errors.As(err, &transition))
}

func TestExpirePendingBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	stale := testBooking(date, []int{10, 11}, 2000, 0)
	past := now.Add(-time.Minute)
	stale.PendingExpiresAt = &past
	require.NoError(t, db.CreateBooking(ctx, stale))

	fresh := testBooking(date, []int{12}, 1000, 0)
	future := now.Add(time.Hour)
	fresh.PendingExpiresAt = &future
	require.NoError(t, db.CreateBooking(ctx, fresh))

	confirmed := testBooking(date, []int{13}, 1000, 0)
	confirmed.PendingExpiresAt = &past
	require.NoError(t, db.CreateBooking(ctx, confirmed))
	_, err := db.ApproveBooking(ctx, confirmed.ID, now)
	require.NoError(t, err)

	expired, err := db.ExpirePendingBookings(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	got, err := db.GetBooking(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Empty(t, got.Slots)

	holds, err := db.DayHolds(ctx, date)
	require.NoError(t, err)
	assert.NotContains(t, holds, 10)
	assert.NotContains(t, holds, 11)
	assert.Contains(t, holds, 12)
	assert.Contains(t, holds, 13)

	// Re-running the sweep with no new lapses is a no-op.
	expired, err = db.ExpirePendingBookings(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestDayHolds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	pending := testBooking(date, []int{8}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, pending))

	approved := testBooking(date, []int{9}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, approved))
	_, err := db.ApproveBooking(ctx, approved.ID, now)
	require.NoError(t, err)

	holds, err := db.DayHolds(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		8: models.StatusPending,
		9: models.StatusApproved,
	}, holds)
}

func TestListBookings_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	a := testBooking(date, []int{8}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, a))

	b := testBooking(date, []int{9}, 1000, 0)
	b.CustomerName = "Vijay Menon"
	b.CustomerPhone = "9000000001"
	require.NoError(t, db.CreateBooking(ctx, b))
	_, err := db.ApproveBooking(ctx, b.ID, now)
	require.NoError(t, err)

	all, err := db.ListBookings(ctx, BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := db.ListBookings(ctx, BookingFilter{Status: models.StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, b.ID, approved[0].ID)

	byPhone, err := db.ListBookings(ctx, BookingFilter{Phone: "9000000001"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, "Vijay Menon", byPhone[0].CustomerName)

	none, err := db.ListBookings(ctx, BookingFilter{DateFrom: date.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertCustomer_ReusesPhone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	first := testBooking(date, []int{8}, 1000, 0)
	require.NoError(t, db.CreateBooking(ctx, first))

	second := testBooking(date, []int{9}, 1000, 0)
	second.CustomerName = "Arun K"
	require.NoError(t, db.CreateBooking(ctx, second))

	assert.Equal(t, first.CustomerID, second.CustomerID)

	customer, err := db.GetCustomerByPhone(ctx, "9876543210")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "Arun K", customer.Name)

	history, err := db.CustomerBookings(ctx, "9876543210")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
