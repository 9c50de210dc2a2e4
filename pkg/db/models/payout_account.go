package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccount maps a user to their connected payout account. Rows are
// synced from the host platform's onboarding flow; a missing row makes a
// disbursement fail retryably rather than silently dropping money.
type PayoutAccount struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_payout_accounts_user_id"`
	AccountRef string    `gorm:"column:account_ref;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
