package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// PayoutTransfer records one disbursement attempt against the payout
// collaborator. The idempotency key is deterministic per (auction, role,
// charge ref) so retries after a crash reuse the same external transfer.
type PayoutTransfer struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID      uuid.UUID          `gorm:"column:auction_id;type:uuid;not null;index"`
	Role           enums.PayoutRole   `gorm:"column:role;type:payout_role;not null"`
	RecipientID    uuid.UUID          `gorm:"column:recipient_id;type:uuid;not null"`
	AccountRef     string             `gorm:"column:account_ref;type:text;not null"`
	AmountCents    int64              `gorm:"column:amount_cents;not null"`
	Currency       enums.Currency     `gorm:"column:currency;not null;default:'USD'"`
	IdempotencyKey string             `gorm:"column:idempotency_key;type:text;not null;unique"`
	TransferRef    *string            `gorm:"column:transfer_ref;type:text"`
	Status         enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	LastError      *string            `gorm:"column:last_error;type:text"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
