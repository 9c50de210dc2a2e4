package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Auction is the canonical listing row. Status is only ever mutated through
// the transition functions in internal/auctions; winner_id is set during
// finalization or buy-now (winning_bid_id only when a ledger bid won) and
// both are cleared on a payment-failure reset.
type Auction struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID            uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	SellerID            uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title               string              `gorm:"column:title;type:text;not null"`
	Description         *string             `gorm:"column:description;type:text"`
	ItemKind            enums.ItemKind      `gorm:"column:item_kind;type:item_kind;not null"`
	Status              enums.AuctionStatus `gorm:"column:status;type:auction_status;not null;default:'scheduled';index"`
	StartPriceCents     int64               `gorm:"column:start_price_cents;not null"`
	MinIncrementCents   int64               `gorm:"column:min_increment_cents;not null"`
	BuyNowPriceCents    *int64              `gorm:"column:buy_now_price_cents"`
	ShippingCostCents   int64               `gorm:"column:shipping_cost_cents;not null;default:0"`
	PlatformFeePercent  decimal.Decimal     `gorm:"column:platform_fee_percent;type:numeric(5,2);not null"`
	CommunityFeePercent decimal.Decimal     `gorm:"column:community_fee_percent;type:numeric(5,2);not null"`
	Currency            enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	StartAt             time.Time           `gorm:"column:start_at;type:timestamptz;not null"`
	EndAt               time.Time           `gorm:"column:end_at;type:timestamptz;not null;index"`
	WinnerID            *uuid.UUID          `gorm:"column:winner_id;type:uuid"`
	WinningBidID        *uuid.UUID          `gorm:"column:winning_bid_id;type:uuid"`
	ChargeRef           *string             `gorm:"column:charge_ref;type:text"`
	PlanRef             *string             `gorm:"column:plan_ref;type:text"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
