// Package payment implements the payment reconciliation engine: settling
// a booking's outstanding balance, optionally split across cash and
// online channels, with extra charges and discounts applied in the same
// transaction as the status change.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchbook/internal/models"

	"github.com/rs/zerolog"
)

// CompletePaymentInput describes one payment-completion action.
type CompletePaymentInput struct {
	Amount       float64              `json:"amount"`
	Method       string               `json:"method"`
	SplitCash    float64              `json:"split_cash"`
	SplitOnline  float64              `json:"split_online"`
	OnlineMethod string               `json:"online_method,omitempty"` // e.g. "upi", "card"
	ExtraCharges []models.ExtraCharge `json:"extra_charges,omitempty"`
	Discount     float64              `json:"discount"`
	ProofRef     string               `json:"proof_ref,omitempty"`
}

// HasSplit reports whether the caller supplied a cash/online split.
func (in *CompletePaymentInput) HasSplit() bool {
	return in.SplitCash != 0 || in.SplitOnline != 0
}

// Result reports how a completed payment reconciled.
type Result struct {
	BookingID     int64   `json:"booking_id"`
	BookingNumber string  `json:"booking_number"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	CashAmount    float64 `json:"cash_amount"`
	OnlineAmount  float64 `json:"online_amount"`
	TotalAmount   float64 `json:"total_amount"`
}

// Repository persists the reconciliation atomically. CompletePayment must
// validate amounts against the balance read inside its own transaction
// and roll back entirely on any mismatch.
type Repository interface {
	CompletePayment(ctx context.Context, bookingID int64, in CompletePaymentInput, now time.Time) (*models.Booking, float64, error)
	RevenueSummary(ctx context.Context, from, to time.Time) (*models.RevenueSummary, error)
}

// EventPublisher pushes payment events to downstream consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Metrics counts payment outcomes.
type Metrics interface {
	IncPaymentCompleted()
	IncPaymentRejected(kind string)
}

// Service orchestrates payment completion: delegates the transactional
// reconciliation to the repository and emits events and metrics.
type Service struct {
	repo    Repository
	bus     EventPublisher
	metrics Metrics
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewService creates a payment service. The clock defaults to time.Now.
func NewService(repo Repository, bus EventPublisher, metrics Metrics, logger *zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CompletedEvent is the payload published on payment.completed.
type CompletedEvent struct {
	BookingID     int64   `json:"booking_id"`
	BookingNumber string  `json:"booking_number"`
	CustomerName  string  `json:"customer_name"`
	Date          string  `json:"date"`
	AmountPaid    float64 `json:"amount_paid"`
	CashAmount    float64 `json:"cash_amount"`
	OnlineAmount  float64 `json:"online_amount"`
	TotalAmount   float64 `json:"total_amount"`
}

// CompletePayment settles a booking's outstanding balance and marks it
// completed. Validation failures return AmountMismatchError,
// SplitMismatchError or booking-level errors with no partial write.
func (s *Service) CompletePayment(ctx context.Context, bookingID int64, in CompletePaymentInput) (*Result, error) {
	if in.Amount < 0 {
		return nil, fmt.Errorf("payment amount must not be negative")
	}
	if in.HasSplit() && (in.SplitCash < 0 || in.SplitOnline < 0) {
		return nil, fmt.Errorf("split amounts must not be negative")
	}

	b, balanceBefore, err := s.repo.CompletePayment(ctx, bookingID, in, s.now())
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncPaymentCompleted()
	}

	if s.bus != nil {
		event := CompletedEvent{
			BookingID:     b.ID,
			BookingNumber: b.BookingNumber,
			CustomerName:  b.CustomerName,
			Date:          b.BookingDate.Format("2006-01-02"),
			AmountPaid:    in.Amount,
			CashAmount:    b.RemainingCashAmount,
			OnlineAmount:  b.RemainingOnlineAmount,
			TotalAmount:   b.TotalAmount,
		}
		if err := s.bus.PublishJSON("payment.completed", event); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to publish payment event")
		}
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("booking_number", b.BookingNumber).
		Float64("balance_before", balanceBefore).
		Float64("cash", b.RemainingCashAmount).
		Float64("online", b.RemainingOnlineAmount).
		Float64("total", b.TotalAmount).
		Msg("payment completed")

	return &Result{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		BalanceBefore: balanceBefore,
		BalanceAfter:  b.RemainingPayment,
		CashAmount:    b.RemainingCashAmount,
		OnlineAmount:  b.RemainingOnlineAmount,
		TotalAmount:   b.TotalAmount,
	}, nil
}

// RevenueSummary aggregates collected revenue over completed bookings in
// [from, to]. Collected means advance + cash + online breakdown, never
// the zeroed outstanding-balance field.
func (s *Service) RevenueSummary(ctx context.Context, from, to time.Time) (*models.RevenueSummary, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: to before from")
	}
	return s.repo.RevenueSummary(ctx, from, to)
}

func (s *Service) countRejection(err error) {
	if s.metrics == nil {
		return
	}
	var amountErr *AmountMismatchError
	var splitErr *SplitMismatchError
	switch {
	case errors.As(err, &amountErr):
		s.metrics.IncPaymentRejected("amount_mismatch")
	case errors.As(err, &splitErr):
		s.metrics.IncPaymentRejected("split_mismatch")
	}
}
