package enums

import "fmt"

// PayoutRole identifies which share of a settled charge a transfer carries.
type PayoutRole string

const (
	PayoutRoleCommunity PayoutRole = "community"
	PayoutRoleSeller    PayoutRole = "seller"
)

var validPayoutRoles = []PayoutRole{
	PayoutRoleCommunity,
	PayoutRoleSeller,
}

// String implements fmt.Stringer.
func (p PayoutRole) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutRole.
func (p PayoutRole) IsValid() bool {
	for _, candidate := range validPayoutRoles {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutRole converts raw input into a PayoutRole.
func ParsePayoutRole(value string) (PayoutRole, error) {
	for _, candidate := range validPayoutRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout role %q", value)
}

// PayoutStatus tracks a transfer attempt against the payout collaborator.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusIssued  PayoutStatus = "issued"
	PayoutStatusFailed  PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusIssued,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
