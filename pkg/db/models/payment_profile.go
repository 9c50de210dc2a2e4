package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProfile maps a buyer to their vaulted payment instrument at the
// charge collaborator. Rows are synced from the host platform's card
// onboarding; without one we cannot charge the buyer off-session.
type PaymentProfile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_payment_profiles_user_id"`
	CustomerRef string    `gorm:"column:customer_ref;type:text;not null"`
	CardRef     string    `gorm:"column:card_ref;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
