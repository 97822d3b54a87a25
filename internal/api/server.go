// Package api exposes the booking system over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pitchbook/internal/availability"
	"pitchbook/internal/booking"
	"pitchbook/internal/database"
	"pitchbook/internal/models"
	"pitchbook/internal/payment"

	"github.com/rs/zerolog"
)

// BookingService is the booking lifecycle surface used by the handlers.
type BookingService interface {
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ApproveBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64, reason string) (*models.Booking, error)
}

// PaymentService settles remaining balances and reports revenue.
type PaymentService interface {
	CompletePayment(ctx context.Context, bookingID int64, in payment.CompletePaymentInput) (*payment.Result, error)
	RevenueSummary(ctx context.Context, from, to time.Time) (*models.RevenueSummary, error)
}

// AvailabilityService answers slot grid and conflict queries.
type AvailabilityService interface {
	GetAvailability(ctx context.Context, date time.Time) (*availability.DayAvailability, error)
	CheckConflict(ctx context.Context, date time.Time, hours []int) ([]int, error)
}

// BookingLister lists bookings with filters, for the admin listing
// endpoint.
type BookingLister interface {
	ListBookings(ctx context.Context, filter database.BookingFilter) ([]models.Booking, error)
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server       *http.Server
	bookings     BookingService
	payments     PaymentService
	availability AvailabilityService
	lister       BookingLister
	logger       *zerolog.Logger
}

// NewHTTPServer wires the handlers onto addr.
func NewHTTPServer(addr string, bookings BookingService, payments PaymentService, avail AvailabilityService, lister BookingLister, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		bookings:     bookings,
		payments:     payments,
		availability: avail,
		lister:       lister,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability", s.handleGetAvailability)
	mux.HandleFunc("/api/availability/check", s.handleCheckAvailability)
	mux.HandleFunc("/api/bookings", s.handleBookings)
	mux.HandleFunc("/api/bookings/", s.handleBookingByID)
	mux.HandleFunc("/api/revenue", s.handleRevenue)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the underlying handler, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving and blocks until the server stops.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps typed domain errors onto HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	var (
		conflict   *booking.ConflictError
		notFound   *booking.NotFoundError
		transition *booking.InvalidTransitionError
		mismatch   *payment.AmountMismatchError
		split      *payment.SplitMismatchError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": conflict.Error(),
			"date":  conflict.Date.Format("2006-01-02"),
			"hours": conflict.Hours,
		})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
	case errors.As(err, &mismatch):
		writeError(w, http.StatusUnprocessableEntity, mismatch.Error())
	case errors.As(err, &split):
		writeError(w, http.StatusUnprocessableEntity, split.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseDateParam(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
