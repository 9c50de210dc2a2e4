package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

// ProfileRepository looks up vaulted payment instruments synced from the
// host platform.
type ProfileRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.PaymentProfile, error)
	Upsert(ctx context.Context, profile *models.PaymentProfile) error
}

type profileRepositoryImpl struct {
	db *gorm.DB
}

// NewProfileRepository returns a payment profile repository bound to the
// provided database.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepositoryImpl{db: db}
}

func (r *profileRepositoryImpl) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.PaymentProfile, error) {
	var profile models.PaymentProfile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepositoryImpl) Upsert(ctx context.Context, profile *models.PaymentProfile) error {
	existing, err := r.FindByUserID(ctx, profile.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.WithContext(ctx).Create(profile).Error
		}
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentProfile{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"customer_ref": profile.CustomerRef,
			"card_ref":     profile.CardRef,
		}).Error
}
