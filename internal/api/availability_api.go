package api

import (
	"encoding/json"
	"net/http"

	"pitchbook/internal/metrics"
)

// CheckAvailabilityRequest is the request body for POST /api/availability/check.
type CheckAvailabilityRequest struct {
	Date  string `json:"date"` // Format: YYYY-MM-DD
	Hours []int  `json:"hours"`
}

// CheckAvailabilityResponse reports which requested hours are taken.
type CheckAvailabilityResponse struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	Taken     []int  `json:"taken,omitempty"`
}

// handleGetAvailability returns the 24-hour slot grid for a date.
// GET /api/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	date, err := parseDateParam(dateParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	day, err := s.availability.GetAvailability(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// handleCheckAvailability answers an advisory conflict check for a set
// of hours. The booking transaction remains the authority.
// POST /api/availability/check
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability_check")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CheckAvailabilityRequest
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
	if len(req.Hours) == 0 {
		writeError(w, http.StatusBadRequest, "hours is required")
		return
	}
	for _, h := range req.Hours {
		if h < 0 || h > 23 {
			writeError(w, http.StatusBadRequest, "hours must be within 0-23")
			return
		}
	}

	taken, err := s.availability.CheckConflict(r.Context(), date, req.Hours)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckAvailabilityResponse{
		Date:      req.Date,
		Available: len(taken) == 0,
		Taken:     taken,
	})
}
