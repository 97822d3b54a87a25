package models

import "time"

// Booking statuses. Completed and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment methods accepted for advance and remaining payments.
const (
	MethodCash   = "cash"
	MethodOnline = "online"
)

// Booking represents one ground reservation and its payment state.
//
// RemainingPayment is the outstanding balance and is driven to zero when
// the payment is completed. RemainingCashAmount and RemainingOnlineAmount
// record how that balance was actually settled and are never zeroed; keep
// the two concepts apart.
type Booking struct {
	ID                     int64         `json:"id"`
	BookingNumber          string        `json:"booking_number"`
	BookingDate            time.Time     `json:"booking_date"`
	Status                 string        `json:"status"`
	TotalHours             int           `json:"total_hours"`
	TotalAmount            float64       `json:"total_amount"`
	AdvancePayment         float64       `json:"advance_payment"`
	AdvancePaymentMethod   string        `json:"advance_payment_method,omitempty"`
	RemainingPayment       float64       `json:"remaining_payment"`
	RemainingPaymentMethod string        `json:"remaining_payment_method,omitempty"`
	RemainingCashAmount    float64       `json:"remaining_cash_amount"`
	RemainingOnlineAmount  float64       `json:"remaining_online_amount"`
	RemainingOnlineMethod  string        `json:"remaining_online_method,omitempty"`
	ExtraCharges           []ExtraCharge `json:"extra_charges,omitempty"`
	DiscountAmount         float64       `json:"discount_amount"`
	PendingExpiresAt       *time.Time    `json:"pending_expires_at,omitempty"`
	CustomerID             int64         `json:"customer_id"`
	CustomerName           string        `json:"customer_name,omitempty"`
	CustomerPhone          string        `json:"customer_phone,omitempty"`
	Slots                  []BookingSlot `json:"slots,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// BookingSlot is a claim on one hour of one date, owned by exactly one
// booking while that booking is non-terminal.
type BookingSlot struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	SlotDate    time.Time `json:"slot_date"`
	SlotHour    int       `json:"slot_hour"` // 0-23
	IsNightRate bool      `json:"is_night_rate"`
}

// Customer identifies who made a booking. Phone is the canonical
// identity key: one phone number, one customer row.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExtraCharge is an itemized amount added at payment completion,
// e.g. overtime or floodlight use.
type ExtraCharge struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// IsTerminal reports whether the booking can no longer change state.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

// HoldsSlots reports whether the booking's slots count toward the
// exclusivity check.
func (b *Booking) HoldsSlots() bool {
	return b.Status == StatusPending || b.Status == StatusApproved || b.Status == StatusCompleted
}

// HeldHours returns the hour indexes the booking currently holds.
func (b *Booking) HeldHours() []int {
	hours := make([]int, 0, len(b.Slots))
	for _, s := range b.Slots {
		hours = append(hours, s.SlotHour)
	}
	return hours
}

// TotalCollected is the revenue contribution of a completed booking:
// advance plus the cash/online breakdown of the settled balance. Never
// derive revenue from RemainingPayment, which is zeroed on completion.
func (b *Booking) TotalCollected() float64 {
	return b.AdvancePayment + b.RemainingCashAmount + b.RemainingOnlineAmount
}

// TotalExtraCharges sums the itemized extra charges.
func (b *Booking) TotalExtraCharges() float64 {
	var total float64
	for _, c := range b.ExtraCharges {
		total += c.Amount
	}
	return total
}

// IsExpired reports whether a pending booking's hold has lapsed at the
// given instant. Non-pending bookings never expire.
func (b *Booking) IsExpired(now time.Time) bool {
	if b.Status != StatusPending || b.PendingExpiresAt == nil {
		return false
	}
	return now.After(*b.PendingExpiresAt)
}
