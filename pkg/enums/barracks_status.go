package enums

import "fmt"

// BarracksStatus tracks a buyer's pending-fulfillment entry from charge
// creation through delivery.
type BarracksStatus string

const (
	BarracksStatusPendingPayment BarracksStatus = "pending_payment"
	BarracksStatusPaid           BarracksStatus = "paid"
	BarracksStatusShipped        BarracksStatus = "shipped"
	BarracksStatusDelivered      BarracksStatus = "delivered"
)

var validBarracksStatuses = []BarracksStatus{
	BarracksStatusPendingPayment,
	BarracksStatusPaid,
	BarracksStatusShipped,
	BarracksStatusDelivered,
}

// String implements fmt.Stringer.
func (b BarracksStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BarracksStatus.
func (b BarracksStatus) IsValid() bool {
	for _, candidate := range validBarracksStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBarracksStatus converts raw input into a BarracksStatus.
func ParseBarracksStatus(value string) (BarracksStatus, error) {
	for _, candidate := range validBarracksStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid barracks status %q", value)
}
