package enums

import "fmt"

// AuctionStatus tracks the lifecycle of an auction listing.
type AuctionStatus string

const (
	AuctionStatusScheduled      AuctionStatus = "scheduled"
	AuctionStatusLive           AuctionStatus = "live"
	AuctionStatusEnded          AuctionStatus = "ended"
	AuctionStatusPendingPayment AuctionStatus = "pending_payment"
	AuctionStatusPaid           AuctionStatus = "paid"
	AuctionStatusFulfilled      AuctionStatus = "fulfilled"
)

var validAuctionStatuses = []AuctionStatus{
	AuctionStatusScheduled,
	AuctionStatusLive,
	AuctionStatusEnded,
	AuctionStatusPendingPayment,
	AuctionStatusPaid,
	AuctionStatusFulfilled,
}

// String implements fmt.Stringer.
func (a AuctionStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuctionStatus.
func (a AuctionStatus) IsValid() bool {
	for _, candidate := range validAuctionStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the auction can never change status again.
func (a AuctionStatus) IsTerminal() bool {
	return a == AuctionStatusFulfilled
}

// ParseAuctionStatus converts raw input into an AuctionStatus.
func ParseAuctionStatus(value string) (AuctionStatus, error) {
	for _, candidate := range validAuctionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid auction status %q", value)
}
