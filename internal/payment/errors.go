package payment

import "fmt"

// Epsilon is the currency rounding tolerance used when comparing amounts.
const Epsilon = 0.01

// AmountMismatchError is returned when the offered payment does not match
// the computed payable amount (outstanding balance plus extra charges
// minus discount).
type AmountMismatchError struct {
	Expected float64
	Received float64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount %.2f does not match payable %.2f", e.Received, e.Expected)
}

// SplitMismatchError is returned when a cash/online split does not sum to
// the payment amount.
type SplitMismatchError struct {
	Cash    float64
	Online  float64
	Payment float64
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("split %.2f cash + %.2f online does not sum to payment %.2f", e.Cash, e.Online, e.Payment)
}

// AmountsEqual compares two currency amounts within Epsilon.
func AmountsEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= Epsilon
}

// ClampDiscount limits a discount to the extra charges it can offset. A
// discount never reduces the pre-existing balance.
func ClampDiscount(discount, totalExtra float64) float64 {
	if discount < 0 {
		return 0
	}
	if discount > totalExtra {
		return totalExtra
	}
	return discount
}
