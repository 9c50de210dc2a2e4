package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ChargeMetadata is the closed set of fields attached to every external
// charge we create. The reconciliation worker round-trips it to tie a settled
// payment back to its auction without trusting the collaborator's filters.
type ChargeMetadata struct {
	AuctionID         uuid.UUID `json:"auction_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	TotalCents        int64     `json:"total_cents"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	CommunityFeeCents int64     `json:"community_fee_cents"`
	SellerCents       int64     `json:"seller_cents"`
}

// Validate rejects metadata that could not reconcile.
func (m ChargeMetadata) Validate() error {
	if m.AuctionID == uuid.Nil {
		return fmt.Errorf("charge metadata: missing auction id")
	}
	if m.BuyerID == uuid.Nil {
		return fmt.Errorf("charge metadata: missing buyer id")
	}
	if m.TotalCents <= 0 {
		return fmt.Errorf("charge metadata: non-positive total")
	}
	if m.PlatformFeeCents+m.CommunityFeeCents+m.SellerCents != m.TotalCents {
		return fmt.Errorf("charge metadata: breakdown does not sum to total")
	}
	return nil
}
