package bids

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

// Repository exposes persistence helpers for the append-only bid ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, bid *models.Bid) error
	HighBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	List(ctx context.Context, params listBidsParams) ([]models.Bid, *pagination.Cursor, error)
	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error)
	DistinctBidders(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a bid ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listBidsParams struct {
	AuctionID uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Insert(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

// HighBid returns the ledger's current high-water mark, or nil when the
// auction has no bids. Ties on amount resolve to the earliest-created bid.
func (r *repositoryImpl) HighBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount_cents DESC, created_at ASC, id ASC").
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listBidsParams) ([]models.Bid, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Bid{}).Where("auction_id = ?", params.AuctionID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var bids []models.Bid
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&bids).Error; err != nil {
		return nil, nil, err
	}

	if len(bids) > normalized {
		next := bids[normalized]
		bids = bids[:normalized]
		return bids, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return bids, nil, nil
}

func (r *repositoryImpl) CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("auction_id = ?", auctionID).
		Count(&count).Error
	return count, err
}

// DistinctBidders lists every user who bid on the auction, for loser
// notifications after finalization.
func (r *repositoryImpl) DistinctBidders(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error) {
	var bidders []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Distinct("bidder_id").
		Where("auction_id = ?", auctionID).
		Pluck("bidder_id", &bidders).Error
	return bidders, err
}
