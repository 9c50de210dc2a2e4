package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// FulfillmentRecord tracks physical shipping sub-state for a paid auction.
// Digital auctions never get one. Created only once the auction reaches paid.
type FulfillmentRecord struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID     uuid.UUID            `gorm:"column:auction_id;type:uuid;not null;uniqueIndex:idx_fulfillment_records_auction_id"`
	BuyerID       uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID      uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;index"`
	Status        enums.ShippingStatus `gorm:"column:status;type:shipping_status;not null;default:'pending_ship'"`
	Disputed      bool                 `gorm:"column:disputed;not null;default:false"`
	DisputeReason *string              `gorm:"column:dispute_reason;type:text"`
	TrackingRef   *string              `gorm:"column:tracking_ref;type:text"`
	ShippedAt     *time.Time           `gorm:"column:shipped_at;type:timestamptz"`
	DeliveredAt   *time.Time           `gorm:"column:delivered_at;type:timestamptz"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
