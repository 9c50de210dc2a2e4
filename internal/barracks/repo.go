package barracks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

// Repository exposes persistence helpers for pending-fulfillment entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.BarracksItem) error
	FindByID(ctx context.Context, itemID uuid.UUID) (*models.BarracksItem, error)
	FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.BarracksItem, error)
	ListByUser(ctx context.Context, params ListItemsParams) ([]models.BarracksItem, *pagination.Cursor, error)
	FindPendingWithChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error)
	FindPendingMissingChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error)
	SetChargeRefs(ctx context.Context, itemID uuid.UUID, planRef, chargeRef string) error
	MarkPaid(ctx context.Context, itemID uuid.UUID, chargeRef string, paidAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, itemID uuid.UUID, from, to enums.BarracksStatus) (bool, error)
	DeleteByAuctionID(ctx context.Context, auctionID uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a barracks repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// ListItemsParams filters a user's barracks page.
type ListItemsParams struct {
	UserID uuid.UUID
	Status *enums.BarracksStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, item *models.BarracksItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, itemID uuid.UUID) (*models.BarracksItem, error) {
	var item models.BarracksItem
	err := r.db.WithContext(ctx).
		Where("id = ?", itemID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.BarracksItem, error) {
	var item models.BarracksItem
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) ListByUser(ctx context.Context, params ListItemsParams) ([]models.BarracksItem, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.BarracksItem{}).Where("user_id = ?", params.UserID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var items []models.BarracksItem
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	if len(items) > normalized {
		next := items[normalized]
		items = items[:normalized]
		return items, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return items, nil, nil
}

// FindPendingWithChargeRef selects entries awaiting payment confirmation.
// Only rows with a real charge reference can be reconciled.
func (r *repositoryImpl) FindPendingWithChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	var items []models.BarracksItem
	query := r.db.WithContext(ctx).
		Where("status = ? AND charge_ref IS NOT NULL AND charge_ref <> ''", enums.BarracksStatusPendingPayment).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindPendingMissingChargeRef selects entries whose charge was never created,
// typically because the collaborator was unreachable during finalization.
func (r *repositoryImpl) FindPendingMissingChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	var items []models.BarracksItem
	query := r.db.WithContext(ctx).
		Where("status = ? AND (charge_ref IS NULL OR charge_ref = '')", enums.BarracksStatusPendingPayment).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repositoryImpl) SetChargeRefs(ctx context.Context, itemID uuid.UUID, planRef, chargeRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.BarracksItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"plan_ref":   planRef,
			"charge_ref": chargeRef,
		}).Error
}

// MarkPaid advances the entry out of pending payment. Conditional on the
// current status so a replayed settlement is a no-op.
func (r *repositoryImpl) MarkPaid(ctx context.Context, itemID uuid.UUID, chargeRef string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BarracksItem{}).
		Where("id = ? AND status = ?", itemID, enums.BarracksStatusPendingPayment).
		Updates(map[string]any{
			"status":     enums.BarracksStatusPaid,
			"charge_ref": chargeRef,
			"paid_at":    paidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) UpdateStatus(ctx context.Context, itemID uuid.UUID, from, to enums.BarracksStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BarracksItem{}).
		Where("id = ? AND status = ?", itemID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) DeleteByAuctionID(ctx context.Context, auctionID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Delete(&models.BarracksItem{})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}
