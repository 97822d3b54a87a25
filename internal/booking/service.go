// Package booking implements the booking lifecycle: creating slot
// reservations under lock, admin approval, cancellation and automatic
// expiry of stale pending holds.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pitchbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository is the transactional store behind the service. CreateBooking
// must re-check slot availability inside its own transaction and hold
// the write lock for the transaction's duration.
type Repository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ApproveBooking(ctx context.Context, id int64, now time.Time) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64, reason string, now time.Time) (*models.Booking, error)
	ExpirePendingBookings(ctx context.Context, now time.Time) (int64, error)
	DayHolds(ctx context.Context, date time.Time) (map[int]string, error)
}

// EventPublisher pushes booking lifecycle events to downstream
// consumers (notifications, ledger sync, cache invalidation).
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Metrics counts lifecycle outcomes.
type Metrics interface {
	IncBookingCreated()
	IncBookingConflict()
	IncBookingApproved()
	IncBookingCancelled()
	AddBookingsExpired(n int64)
}

// Pricing carries the per-booking rate card and the advance collected
// at creation time.
type Pricing struct {
	HourlyRate      float64 `json:"hourly_rate"`
	NightHourlyRate float64 `json:"night_hourly_rate"`
	Advance         float64 `json:"advance"`
	AdvanceMethod   string  `json:"advance_method,omitempty"`
}

// CreateBookingInput describes one booking attempt.
type CreateBookingInput struct {
	Date          time.Time
	Hours         []int
	CustomerName  string
	CustomerPhone string
	Pricing       Pricing
}

// Config tunes lifecycle behavior.
type Config struct {
	// PendingTTL is how long an unconfirmed booking holds its slots.
	PendingTTL time.Duration
	// NightStartHour and NightEndHour bound the night-rate window;
	// an hour h is night-rate when h >= start or h < end.
	NightStartHour int
	NightEndHour   int
	// HourlyRate and NightHourlyRate apply when the request does not
	// carry its own rates.
	HourlyRate      float64
	NightHourlyRate float64
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		PendingTTL:     30 * time.Minute,
		NightStartHour: 18,
		NightEndHour:   6,
	}
}

// Service is the booking lifecycle manager.
type Service struct {
	repo    Repository
	bus     EventPublisher
	metrics Metrics
	logger  *zerolog.Logger
	config  Config
	now     func() time.Time
}

// NewService creates a booking service. The clock defaults to time.Now.
func NewService(repo Repository, bus EventPublisher, metrics Metrics, config Config, logger *zerolog.Logger) *Service {
	if config.PendingTTL <= 0 {
		config.PendingTTL = DefaultConfig().PendingTTL
	}
	return &Service{
		repo:    repo,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatedEvent is the payload published on booking.created.
type CreatedEvent struct {
	BookingID     int64   `json:"booking_id"`
	BookingNumber string  `json:"booking_number"`
	CustomerName  string  `json:"customer_name"`
	Date          string  `json:"date"`
	Hours         int     `json:"hours"`
	TotalAmount   float64 `json:"total_amount"`
}

// LifecycleEvent is the payload published on approve/cancel events.
type LifecycleEvent struct {
	BookingID     int64  `json:"booking_id"`
	BookingNumber string `json:"booking_number"`
	CustomerName  string `json:"customer_name"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// CreateBooking validates the request, prices the slots and persists the
// booking in pending state with its slot holds. Overlap with another
// non-terminal booking's hours returns ConflictError.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if in.Pricing.HourlyRate == 0 {
		in.Pricing.HourlyRate = s.config.HourlyRate
	}
	if in.Pricing.NightHourlyRate == 0 {
		in.Pricing.NightHourlyRate = s.config.NightHourlyRate
	}
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	now := s.now()
	hours := append([]int(nil), in.Hours...)
	sort.Ints(hours)

	date := in.Date
	total := 0.0
	slots := make([]models.BookingSlot, 0, len(hours))
	for _, h := range hours {
		night := s.isNightHour(h)
		rate := in.Pricing.HourlyRate
		if night && in.Pricing.NightHourlyRate > 0 {
			rate = in.Pricing.NightHourlyRate
		}
		total += rate
		slots = append(slots, models.BookingSlot{SlotDate: date, SlotHour: h, IsNightRate: night})
	}

	if in.Pricing.Advance > total {
		return nil, fmt.Errorf("advance %.2f exceeds total %.2f", in.Pricing.Advance, total)
	}

	expiresAt := now.Add(s.config.PendingTTL)
	b := &models.Booking{
		BookingNumber:        newBookingNumber(date),
		BookingDate:          date,
		Status:               models.StatusPending,
		TotalHours:           len(hours),
		TotalAmount:          total,
		AdvancePayment:       in.Pricing.Advance,
		AdvancePaymentMethod: in.Pricing.AdvanceMethod,
		RemainingPayment:     total - in.Pricing.Advance,
		PendingExpiresAt:     &expiresAt,
		CustomerName:         in.CustomerName,
		CustomerPhone:        in.CustomerPhone,
		Slots:                slots,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		if _, ok := errAsConflict(err); ok && s.metrics != nil {
			s.metrics.IncBookingConflict()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncBookingCreated()
	}
	s.publish("booking.created", CreatedEvent{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		CustomerName:  b.CustomerName,
		Date:          date.Format("2006-01-02"),
		Hours:         len(hours),
		TotalAmount:   b.TotalAmount,
	})

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("booking_number", b.BookingNumber).
		Str("date", date.Format("2006-01-02")).
		Ints("hours", hours).
		Float64("total", total).
		Time("expires_at", expiresAt).
		Msg("booking created")
	return b, nil
}

func (s *Service) validateCreate(in CreateBookingInput) error {
	if in.Date.IsZero() {
		return fmt.Errorf("booking date is required")
	}
	if len(in.Hours) == 0 {
		return fmt.Errorf("at least one hour is required")
	}
	seen := make(map[int]bool, len(in.Hours))
	for _, h := range in.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("hour %d out of range 0-23", h)
		}
		if seen[h] {
			return fmt.Errorf("hour %d requested twice", h)
		}
		seen[h] = true
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return fmt.Errorf("customer name is required")
	}
	if strings.TrimSpace(in.CustomerPhone) == "" {
		return fmt.Errorf("customer phone is required")
	}
	if in.Pricing.HourlyRate <= 0 {
		return fmt.Errorf("hourly rate must be positive")
	}
	if in.Pricing.Advance < 0 {
		return fmt.Errorf("advance must not be negative")
	}
	return nil
}

func (s *Service) isNightHour(h int) bool {
	start, end := s.config.NightStartHour, s.config.NightEndHour
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// ApproveBooking confirms a pending booking.
func (s *Service) ApproveBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.repo.ApproveBooking(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncBookingApproved()
	}
	s.publish("booking.approved", LifecycleEvent{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		CustomerName:  b.CustomerName,
		Date:          b.BookingDate.Format("2006-01-02"),
		Status:        b.Status,
	})
	s.logger.Info().Int64("booking_id", id).Msg("booking approved")
	return b, nil
}

// CancelBooking cancels any non-terminal booking and releases its slots.
func (s *Service) CancelBooking(ctx context.Context, id int64, reason string) (*models.Booking, error) {
	b, err := s.repo.CancelBooking(ctx, id, reason, s.now())
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncBookingCancelled()
	}
	s.publish("booking.cancelled", LifecycleEvent{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		CustomerName:  b.CustomerName,
		Date:          b.BookingDate.Format("2006-01-02"),
		Status:        b.Status,
		Reason:        reason,
	})
	s.logger.Info().Int64("booking_id", id).Str("reason", reason).Msg("booking cancelled")
	return b, nil
}

// GetBooking returns a booking by id.
func (s *Service) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ExpirePending cancels pending bookings whose hold has lapsed. Safe to
// call repeatedly: a second run with no intervening changes is a no-op.
func (s *Service) ExpirePending(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpirePendingBookings(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	if expired > 0 {
		if s.metrics != nil {
			s.metrics.AddBookingsExpired(expired)
		}
		s.logger.Info().Int64("expired", expired).Msg("expired stale pending bookings")
	}
	return expired, nil
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func errAsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// newBookingNumber generates a human-readable booking number like
// PB-20260210-4F2A1C.
func newBookingNumber(date time.Time) string {
	id := uuid.New().String()
	return fmt.Sprintf("PB-%s-%s", date.Format("20060102"), strings.ToUpper(id[:6]))
}
