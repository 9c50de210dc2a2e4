package payouts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Repository exposes persistence helpers for payout transfers and the
// account directory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.PayoutTransfer) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.PayoutTransfer, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error)
	MarkIssued(ctx context.Context, transferID uuid.UUID, transferRef string) error
	MarkFailed(ctx context.Context, transferID uuid.UUID, cause string) error
	FindAccountRef(ctx context.Context, userID uuid.UUID) (string, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, transfer *models.PayoutTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repositoryImpl) FindByIdempotencyKey(ctx context.Context, key string) (*models.PayoutTransfer, error) {
	var transfer models.PayoutTransfer
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transfer, nil
}

func (r *repositoryImpl) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error) {
	var transfers []models.PayoutTransfer
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at ASC").
		Find(&transfers).Error
	return transfers, err
}

func (r *repositoryImpl) MarkIssued(ctx context.Context, transferID uuid.UUID, transferRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutTransfer{}).
		Where("id = ?", transferID).
		Updates(map[string]any{
			"status":       enums.PayoutStatusIssued,
			"transfer_ref": transferRef,
			"last_error":   nil,
		}).Error
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, transferID uuid.UUID, cause string) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutTransfer{}).
		Where("id = ?", transferID).
		Updates(map[string]any{
			"status":     enums.PayoutStatusFailed,
			"last_error": cause,
		}).Error
}

func (r *repositoryImpl) FindAccountRef(ctx context.Context, userID uuid.UUID) (string, error) {
	var account models.PayoutAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		return "", err
	}
	return account.AccountRef, nil
}
