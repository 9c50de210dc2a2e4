package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the marketplace instance an auction belongs to. Rows are synced
// from the host platform; the community owner receives the community fee cut.
type Tenant struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;type:text;not null"`
	CommunityOwnerID uuid.UUID `gorm:"column:community_owner_id;type:uuid;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
