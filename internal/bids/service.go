package bids

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

// Service defines bid ledger operations.
type Service interface {
	PlaceBid(ctx context.Context, params PlaceBidParams) (*models.Bid, error)
	HighBid(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Bid, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wire bid ledger dependencies.
type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Auctions auctions.Repository
	Outbox   outboxEmitter
	Logger   *logger.Logger
}

type service struct {
	db       txRunner
	repo     Repository
	auctions auctions.Repository
	outbox   outboxEmitter
	logg     *logger.Logger
	now      func() time.Time
}

// PlaceBidParams carry one bid attempt. All ids are explicit; nothing is
// read from ambient request state.
type PlaceBidParams struct {
	TenantID    uuid.UUID
	AuctionID   uuid.UUID
	BidderID    uuid.UUID
	AmountCents int64
}

// ListParams configures pagination for an auction's bid history.
type ListParams struct {
	TenantID  uuid.UUID
	AuctionID uuid.UUID
	Limit     int
	Cursor    string
}

// ListResult wraps returned bids and the cursor for the next page.
type ListResult struct {
	Items  []models.Bid `json:"items"`
	Cursor string       `json:"cursor"`
}

// NewService wires bid ledger dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bid repository required")
	}
	if params.Auctions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auction repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		auctions: params.Auctions,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// PlaceBid appends a bid after checking every precondition against the
// ledger's current state inside one transaction. The auction row is locked
// for the duration, so two bidders can never both clear the same high-water
// mark. The auction row itself is not mutated: the high bid stays derived.
func (s *service) PlaceBid(ctx context.Context, params PlaceBidParams) (*models.Bid, error) {
	if params.TenantID == uuid.Nil || params.AuctionID == uuid.Nil || params.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, auction, and bidder ids required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid amount must be positive")
	}

	var placed *models.Bid
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		auctionRepo := s.auctions.WithTx(tx)
		auction, err := auctionRepo.FindByIDForUpdate(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.TenantID != params.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}

		now := s.now().UTC()
		if auctions.EffectiveStatus(auction, now) != enums.AuctionStatusLive {
			return pkgerrors.New(pkgerrors.CodeAuctionNotLive, "auction is not accepting bids")
		}
		if !now.Before(auction.EndAt) {
			return pkgerrors.New(pkgerrors.CodeAuctionExpired, "auction has ended")
		}
		if auction.SellerID == params.BidderID {
			return pkgerrors.New(pkgerrors.CodeSelfBid, "sellers cannot bid on their own auctions")
		}

		ledger := s.repo.WithTx(tx)
		high, err := ledger.HighBid(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read high bid")
		}
		floor := auction.StartPriceCents
		if high != nil {
			floor = high.AmountCents
		}
		minimum := floor + auction.MinIncrementCents
		if params.AmountCents < minimum {
			return pkgerrors.New(pkgerrors.CodeBidTooLow,
				fmt.Sprintf("minimum bid is %d", minimum)).
				WithDetails(map[string]any{"minimumCents": minimum})
		}

		bid := &models.Bid{
			ID:          uuid.New(),
			AuctionID:   auction.ID,
			BidderID:    params.BidderID,
			AmountCents: params.AmountCents,
			CreatedAt:   now,
		}
		if err := ledger.Insert(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append bid")
		}

		actor := &outbox.ActorRef{UserID: params.BidderID, TenantID: &auction.TenantID, Role: "bidder"}
		placedEvent := outbox.DomainEvent{
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Actor:         actor,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.BidPlacedEvent{
				AuctionID:   auction.ID,
				BidID:       bid.ID,
				BidderID:    params.BidderID,
				AmountCents: params.AmountCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, placedEvent); err != nil {
			return err
		}

		if high != nil && high.BidderID != params.BidderID {
			outbidEvent := outbox.DomainEvent{
				EventType:     enums.EventBidderOutbid,
				AggregateType: enums.AggregateAuction,
				AggregateID:   auction.ID,
				Actor:         actor,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.BidderOutbidEvent{
					AuctionID:      auction.ID,
					OutbidUserID:   high.BidderID,
					NewAmountCents: params.AmountCents,
				},
			}
			if err := s.outbox.Emit(ctx, tx, outbidEvent); err != nil {
				return err
			}
		}

		placed = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"auction_id": params.AuctionID,
		"bid_id":     placed.ID,
		"amount":     params.AmountCents,
	})
	s.logg.Info(logCtx, "bid placed")
	return placed, nil
}

func (s *service) HighBid(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Bid, error) {
	if tenantID == uuid.Nil || auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and auction ids required")
	}
	if _, err := s.auctions.FindByID(ctx, tenantID, auctionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	bid, err := s.repo.HighBid(ctx, auctionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read high bid")
	}
	return bid, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.TenantID == uuid.Nil || params.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and auction ids required")
	}
	if _, err := s.auctions.FindByID(ctx, params.TenantID, params.AuctionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}

	query := listBidsParams{
		AuctionID: params.AuctionID,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}
