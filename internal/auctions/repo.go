package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

// Repository exposes persistence helpers for auctions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, auction *models.Auction) error
	FindByID(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error)
	FindByIDForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params ListAuctionsParams) ([]models.Auction, *pagination.Cursor, error)
	FindExpiredLive(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	FindEndedAwaitingReaward(ctx context.Context, limit int) ([]models.Auction, error)
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	SetChargeRefs(ctx context.Context, auctionID uuid.UUID, planRef, chargeRef string) error
	UpdateTerms(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error
	Transition(ctx context.Context, auctionID uuid.UUID, from, to enums.AuctionStatus, updates map[string]any) (bool, error)
	FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an auctions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// ListAuctionsParams filters a tenant's auction page.
type ListAuctionsParams struct {
	TenantID uuid.UUID
	SellerID *uuid.UUID
	Status   *enums.AuctionStatus
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, auction *models.Auction) error {
	return r.db.WithContext(ctx).Create(auction).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", auctionID, tenantID).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

// FindByIDForUpdate locks the auction row for the duration of the caller's
// transaction. Every writer that races on status goes through this lock.
func (r *repositoryImpl) FindByIDForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", auctionID).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListAuctionsParams) ([]models.Auction, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Auction{}).Where("tenant_id = ?", params.TenantID)
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var auctions []models.Auction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&auctions).Error; err != nil {
		return nil, nil, err
	}

	if len(auctions) > normalized {
		next := auctions[normalized]
		auctions = auctions[:normalized]
		return auctions, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return auctions, nil, nil
}

func (r *repositoryImpl) FindExpiredLive(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var auctions []models.Auction
	query := r.db.WithContext(ctx).
		Where("status = ? AND end_at <= ?", enums.AuctionStatusLive, now).
		Order("end_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// FindEndedAwaitingReaward selects auctions a failed charge pushed back to
// ended whose ledger still holds bids. Ended auctions that never attracted a
// bid are excluded; they have nothing left to award.
func (r *repositoryImpl) FindEndedAwaitingReaward(ctx context.Context, limit int) ([]models.Auction, error) {
	var auctions []models.Auction
	query := r.db.WithContext(ctx).
		Where("status = ? AND winner_id IS NULL", enums.AuctionStatusEnded).
		Where("EXISTS (SELECT 1 FROM bids WHERE bids.auction_id = auctions.id)").
		Order("end_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

func (r *repositoryImpl) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var auctions []models.Auction
	query := r.db.WithContext(ctx).
		Where("status = ? AND start_at <= ?", enums.AuctionStatusScheduled, now).
		Order("start_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// SetChargeRefs records the external charge on an auction still collecting
// payment. Conditional on status so a late charge response cannot scribble
// over a reset row.
func (r *repositoryImpl) SetChargeRefs(ctx context.Context, auctionID uuid.UUID, planRef, chargeRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND status = ?", auctionID, enums.AuctionStatusPendingPayment).
		Updates(map[string]any{
			"plan_ref":   planRef,
			"charge_ref": chargeRef,
		}).Error
}

func (r *repositoryImpl) UpdateTerms(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", auctionID).
		Updates(updates).Error
}

// Transition applies a compare-and-swap status update. It reports false when
// the row was not in the expected source state, which callers treat as
// another writer having already advanced the auction.
func (r *repositoryImpl) Transition(ctx context.Context, auctionID uuid.UUID, from, to enums.AuctionStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND status = ?", auctionID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("id = ?", tenantID).
		First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}
