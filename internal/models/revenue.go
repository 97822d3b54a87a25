package models

import "time"

// RevenueSummary aggregates collected revenue over completed bookings.
// Total is advance + cash + online across the period; the outstanding
// balance column plays no part in it.
type RevenueSummary struct {
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	CompletedBookings int       `json:"completed_bookings"`
	AdvanceTotal      float64   `json:"advance_total"`
	CashTotal         float64   `json:"cash_total"`
	OnlineTotal       float64   `json:"online_total"`
	DiscountTotal     float64   `json:"discount_total"`
	Total             float64   `json:"total"`
}
