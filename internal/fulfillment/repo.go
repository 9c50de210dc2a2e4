package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Repository exposes persistence helpers for fulfillment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.FulfillmentRecord) error
	FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error)
	MarkShipped(ctx context.Context, auctionID uuid.UUID, trackingRef *string, now time.Time) (bool, error)
	MarkDelivered(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)
	MarkDisputed(ctx context.Context, auctionID uuid.UUID, reason string) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a fulfillment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, record *models.FulfillmentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repositoryImpl) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error) {
	var record models.FulfillmentRecord
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) MarkShipped(ctx context.Context, auctionID uuid.UUID, trackingRef *string, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     enums.ShippingStatusShipped,
		"shipped_at": now,
	}
	if trackingRef != nil {
		updates["tracking_ref"] = *trackingRef
	}
	result := r.db.WithContext(ctx).
		Model(&models.FulfillmentRecord{}).
		Where("auction_id = ? AND status = ?", auctionID, enums.ShippingStatusPendingShip).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkDelivered(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FulfillmentRecord{}).
		Where("auction_id = ? AND status = ?", auctionID, enums.ShippingStatusShipped).
		Updates(map[string]any{
			"status":       enums.ShippingStatusDelivered,
			"delivered_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkDisputed(ctx context.Context, auctionID uuid.UUID, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FulfillmentRecord{}).
		Where("auction_id = ? AND disputed = ?", auctionID, false).
		Updates(map[string]any{
			"disputed":       true,
			"dispute_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
