package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an append-only ledger row. Bids are never updated or deleted, even
// when the auction they belong to is reset after a failed charge.
type Bid struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID   uuid.UUID `gorm:"column:auction_id;type:uuid;not null;index"`
	BidderID    uuid.UUID `gorm:"column:bidder_id;type:uuid;not null;index"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
