package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// AuctionWentLiveEvent marks the scheduled-to-live visibility flip.
type AuctionWentLiveEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	EndAt     time.Time `json:"end_at"`
}

// AuctionEndedEvent is emitted when finalization closes an auction with no
// winning bid.
type AuctionEndedEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	BidCount  int       `json:"bid_count"`
}

// AuctionWonEvent carries the winner and charge details after finalization.
type AuctionWonEvent struct {
	AuctionID      uuid.UUID `json:"auction_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	WinnerID       uuid.UUID `json:"winner_id"`
	WinningBidID   uuid.UUID `json:"winning_bid_id"`
	BidAmountCents int64     `json:"bid_amount_cents"`
	TotalCents     int64     `json:"total_cents"`
	ChargeRef      string    `json:"charge_ref,omitempty"`
	PlanRef        string    `json:"plan_ref,omitempty"`
	BuyNow         bool      `json:"buy_now"`
}

// BidPlacedEvent records an accepted ledger append.
type BidPlacedEvent struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	BidID       uuid.UUID `json:"bid_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	AmountCents int64     `json:"amount_cents"`
}

// BidderOutbidEvent tells the previous high bidder they lost the lead.
type BidderOutbidEvent struct {
	AuctionID      uuid.UUID `json:"auction_id"`
	OutbidUserID   uuid.UUID `json:"outbid_user_id"`
	NewAmountCents int64     `json:"new_amount_cents"`
}

// PaymentSettledEvent confirms the external charge cleared.
type PaymentSettledEvent struct {
	AuctionID         uuid.UUID `json:"auction_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	ChargeRef         string    `json:"charge_ref"`
	TotalCents        int64     `json:"total_cents"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	CommunityFeeCents int64     `json:"community_fee_cents"`
	SellerCents       int64     `json:"seller_cents"`
	PaidAt            time.Time `json:"paid_at"`
}

// PaymentFailedEvent reports a terminal charge failure observed during
// reconciliation.
type PaymentFailedEvent struct {
	AuctionID uuid.UUID          `json:"auction_id"`
	BuyerID   uuid.UUID          `json:"buyer_id"`
	ChargeRef string             `json:"charge_ref"`
	Status    enums.ChargeStatus `json:"status"`
}

// AuctionResetEvent is the compensating action after a failed charge.
type AuctionResetEvent struct {
	AuctionID      uuid.UUID `json:"auction_id"`
	ClearedUserID  uuid.UUID `json:"cleared_user_id"`
	PreviousCharge string    `json:"previous_charge,omitempty"`
}

// PayoutIssuedEvent records a successful transfer to a recipient.
type PayoutIssuedEvent struct {
	AuctionID   uuid.UUID        `json:"auction_id"`
	Role        enums.PayoutRole `json:"role"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	AmountCents int64            `json:"amount_cents"`
	TransferRef string           `json:"transfer_ref"`
}

// ItemShippedEvent marks a physical fulfillment leaving the seller.
type ItemShippedEvent struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	TrackingRef string    `json:"tracking_ref,omitempty"`
}

// ItemDeliveredEvent marks buyer-confirmed receipt.
type ItemDeliveredEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
}

// FulfillmentDisputedEvent flags a dispute on a paid auction.
type FulfillmentDisputedEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	Reason    string    `json:"reason,omitempty"`
}

// NotificationRequestedEvent tells downstream systems to alert a user.
type NotificationRequestedEvent struct {
	AuctionID uuid.UUID              `json:"auction_id"`
	UserID    uuid.UUID              `json:"user_id"`
	TenantID  uuid.UUID              `json:"tenant_id"`
	Type      enums.NotificationType `json:"type"`
}

// BuyNowPurchasedEvent records the synchronous buy-now path.
type BuyNowPurchasedEvent struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	AmountCents int64     `json:"amount_cents"`
}
