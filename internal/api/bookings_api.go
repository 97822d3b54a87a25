package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pitchbook/internal/booking"
	"pitchbook/internal/database"
	"pitchbook/internal/metrics"
	"pitchbook/internal/models"
	"pitchbook/internal/payment"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	Date            string  `json:"date"` // Format: YYYY-MM-DD
	Hours           []int   `json:"hours"`
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	HourlyRate      float64 `json:"hourly_rate"`
	NightHourlyRate float64 `json:"night_hourly_rate,omitempty"`
	Advance         float64 `json:"advance,omitempty"`
	AdvanceMethod   string  `json:"advance_method,omitempty"`
}

// CancelBookingRequest is the request body for POST /api/bookings/{id}/cancel.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CompletePaymentRequest is the request body for
// POST /api/bookings/{id}/complete-payment.
type CompletePaymentRequest struct {
	Amount       float64              `json:"amount"`
	Method       string               `json:"method"`
	SplitCash    float64              `json:"split_cash,omitempty"`
	SplitOnline  float64              `json:"split_online,omitempty"`
	OnlineMethod string               `json:"online_method,omitempty"`
	ExtraCharges []models.ExtraCharge `json:"extra_charges,omitempty"`
	Discount     float64              `json:"discount,omitempty"`
	ProofRef     string               `json:"proof_ref,omitempty"`
}

// handleBookings creates a booking or lists bookings.
// POST /api/bookings, GET /api/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_create")

	var req CreateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := parseDateParam(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	b, err := s.bookings.CreateBooking(r.Context(), booking.CreateBookingInput{
		Date:          date,
		Hours:         req.Hours,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Pricing: booking.Pricing{
			HourlyRate:      req.HourlyRate,
			NightHourlyRate: req.NightHourlyRate,
			Advance:         req.Advance,
			AdvanceMethod:   req.AdvanceMethod,
		},
	})
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_list")

	q := r.URL.Query()
	filter := database.BookingFilter{
		Status: q.Get("status"),
		Phone:  q.Get("phone"),
	}
	if v := q.Get("date_from"); v != "" {
		date, err := parseDateParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_from; expected YYYY-MM-DD")
			return
		}
		filter.DateFrom = date
	}
	if v := q.Get("date_to"); v != "" {
		date, err := parseDateParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_to; expected YYYY-MM-DD")
			return
		}
		filter.DateTo = date
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	bookings, err := s.lister.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleBookingByID routes /api/bookings/{id} and its action subpaths.
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/bookings/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
			return
		}
		s.getBooking(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	switch parts[1] {
	case "approve":
		s.approveBooking(w, r, id)
	case "cancel":
		s.cancelBooking(w, r, id)
	case "complete-payment":
		s.completePayment(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("bookings_get")

	b, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) approveBooking(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("bookings_approve")

	b, err := s.bookings.ApproveBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("bookings_cancel")

	var req CancelBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	b, err := s.bookings.CancelBooking(r.Context(), id, req.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) completePayment(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("bookings_complete_payment")

	var req CompletePaymentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Method != models.MethodCash && req.Method != models.MethodOnline {
		writeError(w, http.StatusBadRequest, "method must be cash or online")
		return
	}

	result, err := s.payments.CompletePayment(r.Context(), id, payment.CompletePaymentInput{
		Amount:       req.Amount,
		Method:       req.Method,
		SplitCash:    req.SplitCash,
		SplitOnline:  req.SplitOnline,
		OnlineMethod: req.OnlineMethod,
		ExtraCharges: req.ExtraCharges,
		Discount:     req.Discount,
		ProofRef:     req.ProofRef,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRevenue reports aggregate revenue over completed bookings.
// GET /api/revenue?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleRevenue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("revenue")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	q := r.URL.Query()
	fromParam, toParam := q.Get("from"), q.Get("to")
	if fromParam == "" || toParam == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}
	from, err := parseDateParam(fromParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(toParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	summary, err := s.payments.RevenueSummary(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeBookingError distinguishes validation failures, which come back
// as plain errors from the service, from the typed domain errors.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	var (
		conflict   *booking.ConflictError
		notFound   *booking.NotFoundError
		transition *booking.InvalidTransitionError
	)
	if errors.As(err, &conflict) || errors.As(err, &notFound) || errors.As(err, &transition) {
		s.writeDomainError(w, err)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
