package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// BarracksItem is a buyer's pending-fulfillment entry: one row per won or
// bought-out auction, tracking payment and delivery independent of the
// auction row. PlanRef and ChargeRef stay nil until the external charge is
// created; the row is deleted outright when a charge fails and the auction
// resets.
type BarracksItem struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	AuctionID   uuid.UUID            `gorm:"column:auction_id;type:uuid;not null;uniqueIndex:idx_barracks_items_auction_id"`
	PlanRef     *string              `gorm:"column:plan_ref;type:text"`
	ChargeRef   *string              `gorm:"column:charge_ref;type:text"`
	AmountCents int64                `gorm:"column:amount_cents;not null"`
	Status      enums.BarracksStatus `gorm:"column:status;type:barracks_status;not null;default:'pending_payment';index"`
	PaidAt      *time.Time           `gorm:"column:paid_at;type:timestamptz"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
