package auctions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/barracks"
	"github.com/bidhaus/bidhaus-backend/internal/commission"
	"github.com/bidhaus/bidhaus-backend/internal/fulfillment"
	"github.com/bidhaus/bidhaus-backend/internal/payments"
	"github.com/bidhaus/bidhaus-backend/internal/payouts"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
	"github.com/bidhaus/bidhaus-backend/pkg/types"
)

// Service drives the auction lifecycle. Every status mutation funnels
// through the transition functions in transitions.go.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Auction, error)
	Get(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateTerms(ctx context.Context, params UpdateParams) (*models.Auction, error)
	BuyNow(ctx context.Context, params BuyNowParams) (*models.Auction, error)
	ActivateDue(ctx context.Context, limit int) (int, error)
	Finalize(ctx context.Context, auctionID uuid.UUID) (FinalizeOutcome, error)
	RetryCharge(ctx context.Context, auctionID uuid.UUID) error
	ConfirmSettled(ctx context.Context, params SettleParams) error
	ResetOnFailure(ctx context.Context, params ResetParams) error
	ConfirmReceipt(ctx context.Context, params ReceiptParams) error
}

// BidLedger is the read surface the state machine needs from the bid
// ledger. Appends serialize on the auction row lock, so reads here are
// consistent whenever the caller holds that lock.
type BidLedger interface {
	HighBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error)
	DistinctBidders(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// FinalizeOutcome names what one finalization attempt did.
type FinalizeOutcome string

const (
	// FinalizeOutcomeSkipped means another writer already advanced the row.
	FinalizeOutcomeSkipped FinalizeOutcome = "skipped"
	// FinalizeOutcomeEnded means the auction closed with no bids.
	FinalizeOutcomeEnded FinalizeOutcome = "ended_no_winner"
	// FinalizeOutcomeWon means a winner was recorded and payment collection
	// started.
	FinalizeOutcomeWon FinalizeOutcome = "winner_pending_payment"
)

// ServiceParams wire auction lifecycle dependencies.
type ServiceParams struct {
	DB          txRunner
	Repo        Repository
	Bids        BidLedger
	Barracks    barracks.Repository
	Fulfillment fulfillment.Repository
	Payouts     payouts.Service
	Charger     payments.Charger
	Outbox      outboxEmitter
	Logger      *logger.Logger
}

type service struct {
	db          txRunner
	repo        Repository
	bids        BidLedger
	barracks    barracks.Repository
	fulfillment fulfillment.Repository
	payouts     payouts.Service
	charger     payments.Charger
	outbox      outboxEmitter
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires auction lifecycle dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auction repository required")
	}
	if params.Bids == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bid ledger required")
	}
	if params.Barracks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "barracks repository required")
	}
	if params.Fulfillment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fulfillment repository required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payouts service required")
	}
	if params.Charger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "charge collaborator required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		bids:        params.Bids,
		barracks:    params.Barracks,
		fulfillment: params.Fulfillment,
		payouts:     params.Payouts,
		charger:     params.Charger,
		outbox:      params.Outbox,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// CreateParams carry a new listing.
type CreateParams struct {
	TenantID            uuid.UUID
	SellerID            uuid.UUID
	Title               string
	Description         *string
	ItemKind            enums.ItemKind
	StartPriceCents     int64
	MinIncrementCents   int64
	BuyNowPriceCents    *int64
	ShippingCostCents   int64
	PlatformFeePercent  decimal.Decimal
	CommunityFeePercent decimal.Decimal
	StartAt             time.Time
	EndAt               time.Time
}

// ListParams configures tenant-scoped auction pagination.
type ListParams struct {
	TenantID uuid.UUID
	SellerID *uuid.UUID
	Status   string
	Limit    int
	Cursor   string
}

// ListResult wraps returned auctions and the cursor for the next page.
type ListResult struct {
	Items  []models.Auction `json:"items"`
	Cursor string           `json:"cursor"`
}

// UpdateParams carry a seller's listing edit. Commercial terms freeze the
// moment the first bid lands.
type UpdateParams struct {
	TenantID          uuid.UUID
	AuctionID         uuid.UUID
	SellerID          uuid.UUID
	Title             *string
	Description       *string
	StartPriceCents   *int64
	MinIncrementCents *int64
	BuyNowPriceCents  *int64
	ShippingCostCents *int64
	EndAt             *time.Time
}

// BuyNowParams carry an instant purchase.
type BuyNowParams struct {
	TenantID    uuid.UUID
	AuctionID   uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int64
}

// SettleParams confirm an external charge settled. BuyerID, PlanRef, and
// AmountCents come from the payment record and are verified against the
// auction before any state changes.
type SettleParams struct {
	AuctionID   uuid.UUID
	BuyerID     uuid.UUID
	PlanRef     string
	ChargeRef   string
	AmountCents int64
	PaidAt      time.Time
}

// ResetParams compensate for a terminally failed charge.
type ResetParams struct {
	AuctionID uuid.UUID
	Observed  enums.ChargeStatus
}

// ReceiptParams carry a buyer's receipt confirmation.
type ReceiptParams struct {
	TenantID  uuid.UUID
	AuctionID uuid.UUID
	BuyerID   uuid.UUID
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Auction, error) {
	if params.TenantID == uuid.Nil || params.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and seller ids required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if !params.ItemKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item kind")
	}
	if params.StartPriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start price must be positive")
	}
	if params.MinIncrementCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum increment must be positive")
	}
	if params.BuyNowPriceCents != nil && *params.BuyNowPriceCents <= params.StartPriceCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buy-now price must exceed the start price")
	}
	if params.ShippingCostCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost must be non-negative")
	}
	if !params.ItemKind.RequiresShipping() && params.ShippingCostCents != 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "digital items cannot carry shipping cost")
	}
	if err := commission.ValidatePercents(params.PlatformFeePercent, params.CommunityFeePercent); err != nil {
		return nil, err
	}
	if !params.EndAt.After(params.StartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	if _, err := s.repo.FindTenant(ctx, params.TenantID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}

	auction := &models.Auction{
		ID:                  uuid.New(),
		TenantID:            params.TenantID,
		SellerID:            params.SellerID,
		Title:               title,
		Description:         params.Description,
		ItemKind:            params.ItemKind,
		Status:              enums.AuctionStatusScheduled,
		StartPriceCents:     params.StartPriceCents,
		MinIncrementCents:   params.MinIncrementCents,
		BuyNowPriceCents:    params.BuyNowPriceCents,
		ShippingCostCents:   params.ShippingCostCents,
		PlatformFeePercent:  params.PlatformFeePercent,
		CommunityFeePercent: params.CommunityFeePercent,
		Currency:            enums.CurrencyUSD,
		StartAt:             params.StartAt.UTC(),
		EndAt:               params.EndAt.UTC(),
	}
	if err := s.repo.Create(ctx, auction); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create auction")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"auction_id": auction.ID,
		"tenant_id":  auction.TenantID,
	})
	s.logg.Info(logCtx, "auction created")
	return auction, nil
}

func (s *service) Get(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error) {
	if tenantID == uuid.Nil || auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and auction ids required")
	}
	auction, err := s.repo.FindByID(ctx, tenantID, auctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	return auction, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}

	query := ListAuctionsParams{
		TenantID: params.TenantID,
		SellerID: params.SellerID,
		Limit:    params.Limit,
	}
	if params.Status != "" {
		status, err := enums.ParseAuctionStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auctions")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) UpdateTerms(ctx context.Context, params UpdateParams) (*models.Auction, error) {
	if params.TenantID == uuid.Nil || params.AuctionID == uuid.Nil || params.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, auction, and seller ids required")
	}

	var updated *models.Auction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.TenantID != params.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		if auction.SellerID != params.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can edit a listing")
		}
		if auction.Status != enums.AuctionStatusScheduled && auction.Status != enums.AuctionStatusLive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction can no longer be edited")
		}

		count, err := s.bids.CountByAuction(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "terms are frozen once bidding has started")
		}

		updates := map[string]any{}
		if params.Title != nil {
			title := strings.TrimSpace(*params.Title)
			if title == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "title required")
			}
			updates["title"] = title
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		startPrice := auction.StartPriceCents
		if params.StartPriceCents != nil {
			if *params.StartPriceCents <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "start price must be positive")
			}
			startPrice = *params.StartPriceCents
			updates["start_price_cents"] = startPrice
		}
		if params.MinIncrementCents != nil {
			if *params.MinIncrementCents <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "minimum increment must be positive")
			}
			updates["min_increment_cents"] = *params.MinIncrementCents
		}
		if params.BuyNowPriceCents != nil {
			if *params.BuyNowPriceCents <= startPrice {
				return pkgerrors.New(pkgerrors.CodeValidation, "buy-now price must exceed the start price")
			}
			updates["buy_now_price_cents"] = *params.BuyNowPriceCents
		}
		if params.ShippingCostCents != nil {
			if *params.ShippingCostCents < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping cost must be non-negative")
			}
			if !auction.ItemKind.RequiresShipping() && *params.ShippingCostCents != 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "digital items cannot carry shipping cost")
			}
			updates["shipping_cost_cents"] = *params.ShippingCostCents
		}
		if params.EndAt != nil {
			if !params.EndAt.After(auction.StartAt) {
				return pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
			}
			updates["end_at"] = params.EndAt.UTC()
		}
		if len(updates) == 0 {
			updated = auction
			return nil
		}
		updates["updated_at"] = s.now().UTC()
		if err := repo.UpdateTerms(ctx, auction.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update auction")
		}
		updated, err = repo.FindByIDForUpdate(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload auction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ActivateDue flips scheduled auctions whose start time has passed to live.
// Purely time-derived; each flip is an independent compare-and-swap.
func (s *service) ActivateDue(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.FindDueScheduled(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query due auctions")
	}

	activated := 0
	for _, auction := range due {
		auction := auction
		wentLive := false
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			applied, err := goLive(ctx, repo, auction.ID, auction.StartAt, now)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
			wentLive = true
			event := outbox.DomainEvent{
				EventType:     enums.EventAuctionWentLive,
				AggregateType: enums.AggregateAuction,
				AggregateID:   auction.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.AuctionWentLiveEvent{
					AuctionID: auction.ID,
					TenantID:  auction.TenantID,
					SellerID:  auction.SellerID,
					EndAt:     auction.EndAt,
				},
			}
			return s.outbox.EmitIfNotExists(ctx, tx, event)
		})
		if err != nil {
			// The transaction rolled back, so this auction never went live
			// and must not count.
			return activated, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate auction")
		}
		if wentLive {
			activated++
		}
	}
	return activated, nil
}

// Finalize closes one expired live auction. With no bids it ends without a
// winner; with bids it records the winner, creates the barracks entry, and
// issues the external charge. An ended auction whose winner was cleared by a
// failed charge is re-awarded from the remaining ledger the same way. Losing
// the compare-and-swap race is a benign skip, never an error.
func (s *service) Finalize(ctx context.Context, auctionID uuid.UUID) (FinalizeOutcome, error) {
	if auctionID == uuid.Nil {
		return FinalizeOutcomeSkipped, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}

	outcome := FinalizeOutcomeSkipped
	var chargeReq *payments.ChargeRequest
	var barracksItemID uuid.UUID

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, auctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		now := s.now().UTC()
		switch auction.Status {
		case enums.AuctionStatusLive:
			if now.Before(auction.EndAt) {
				return nil
			}
		case enums.AuctionStatusEnded:
			// A failed charge resets the auction to ended with the winner
			// cleared; the ledger may still produce a sale.
			if auction.WinnerID != nil {
				return nil
			}
		default:
			return nil
		}

		high, err := s.bids.HighBid(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read high bid")
		}

		if high == nil {
			if auction.Status == enums.AuctionStatusEnded {
				return nil
			}
			applied, err := endWithoutWinner(ctx, repo, auction.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end auction")
			}
			if !applied {
				return nil
			}
			outcome = FinalizeOutcomeEnded
			event := outbox.DomainEvent{
				EventType:     enums.EventAuctionEnded,
				AggregateType: enums.AggregateAuction,
				AggregateID:   auction.ID,
				Version:       1,
				OccurredAt:    now,
				Data: payloads.AuctionEndedEvent{
					AuctionID: auction.ID,
					TenantID:  auction.TenantID,
					SellerID:  auction.SellerID,
					BidCount:  0,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			return s.requestNotification(ctx, tx, auction.ID, auction.TenantID, auction.SellerID, enums.NotificationTypeAuctionEnded, now)
		}

		total := high.AmountCents
		if auction.ItemKind.RequiresShipping() {
			total += auction.ShippingCostCents
		}
		breakdown, err := commission.Calculate(total, auction.PlatformFeePercent, auction.CommunityFeePercent)
		if err != nil {
			return err
		}

		planRef := "bh-" + uuid.NewString()
		var applied bool
		if auction.Status == enums.AuctionStatusEnded {
			applied, err = reawardFromEnded(ctx, repo, auction.ID, high.BidderID, &high.ID, planRef)
		} else {
			applied, err = beginPendingPayment(ctx, repo, auction.ID, high.BidderID, &high.ID, planRef)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record winner")
		}
		if !applied {
			return nil
		}

		item := &models.BarracksItem{
			ID:          uuid.New(),
			UserID:      high.BidderID,
			AuctionID:   auction.ID,
			PlanRef:     &planRef,
			AmountCents: total,
			Status:      enums.BarracksStatusPendingPayment,
		}
		if err := s.barracks.WithTx(tx).Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create barracks entry")
		}
		barracksItemID = item.ID

		wonEvent := outbox.DomainEvent{
			EventType:     enums.EventAuctionWon,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.AuctionWonEvent{
				AuctionID:      auction.ID,
				TenantID:       auction.TenantID,
				SellerID:       auction.SellerID,
				WinnerID:       high.BidderID,
				WinningBidID:   high.ID,
				BidAmountCents: high.AmountCents,
				TotalCents:     total,
				PlanRef:        planRef,
			},
		}
		if err := s.outbox.Emit(ctx, tx, wonEvent); err != nil {
			return err
		}
		if err := s.enqueueOutcomeNotifications(ctx, tx, auction, high.BidderID, now); err != nil {
			return err
		}

		chargeReq = &payments.ChargeRequest{
			PlanRef:     planRef,
			Description: fmt.Sprintf("BidHaus auction: %s", auction.Title),
			Currency:    auction.Currency.String(),
			Metadata: types.ChargeMetadata{
				AuctionID:         auction.ID,
				BuyerID:           high.BidderID,
				TotalCents:        breakdown.TotalCents,
				PlatformFeeCents:  breakdown.PlatformFeeCents,
				CommunityFeeCents: breakdown.CommunityFeeCents,
				SellerCents:       breakdown.SellerCents,
			},
		}
		outcome = FinalizeOutcomeWon
		return nil
	})
	if err != nil {
		return FinalizeOutcomeSkipped, err
	}

	if chargeReq != nil {
		if err := s.createCharge(ctx, auctionID, barracksItemID, *chargeReq); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// BuyNow purchases the item instantly at the listed price. The auction must
// still be live at the instant of purchase; liveness is re-validated under
// the row lock, never assumed from client state.
func (s *service) BuyNow(ctx context.Context, params BuyNowParams) (*models.Auction, error) {
	if params.TenantID == uuid.Nil || params.AuctionID == uuid.Nil || params.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant, auction, and buyer ids required")
	}

	var purchased *models.Auction
	var chargeReq *payments.ChargeRequest
	var barracksItemID uuid.UUID

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, params.AuctionID)
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
		if EffectiveStatus(auction, now) != enums.AuctionStatusLive {
			return pkgerrors.New(pkgerrors.CodeAuctionNotLive, "auction is not open for purchase")
		}
		if !now.Before(auction.EndAt) {
			return pkgerrors.New(pkgerrors.CodeAuctionExpired, "auction has ended")
		}
		if auction.SellerID == params.BuyerID {
			return pkgerrors.New(pkgerrors.CodeSelfBid, "sellers cannot buy their own items")
		}
		if auction.BuyNowPriceCents == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "auction has no buy-now price")
		}
		if params.AmountCents != *auction.BuyNowPriceCents {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("buy-now price is %d", *auction.BuyNowPriceCents)).
				WithDetails(map[string]any{"buyNowPriceCents": *auction.BuyNowPriceCents})
		}

		if auction.Status == enums.AuctionStatusScheduled {
			if _, err := goLive(ctx, repo, auction.ID, auction.StartAt, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open auction")
			}
		}

		total := *auction.BuyNowPriceCents
		if auction.ItemKind.RequiresShipping() {
			total += auction.ShippingCostCents
		}
		breakdown, err := commission.Calculate(total, auction.PlatformFeePercent, auction.CommunityFeePercent)
		if err != nil {
			return err
		}

		planRef := "bh-" + uuid.NewString()
		applied, err := beginPendingPayment(ctx, repo, auction.ID, params.BuyerID, nil, planRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record purchase")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction was just closed by another action")
		}

		item := &models.BarracksItem{
			ID:          uuid.New(),
			UserID:      params.BuyerID,
			AuctionID:   auction.ID,
			PlanRef:     &planRef,
			AmountCents: total,
			Status:      enums.BarracksStatusPendingPayment,
		}
		if err := s.barracks.WithTx(tx).Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create barracks entry")
		}
		barracksItemID = item.ID

		actor := &outbox.ActorRef{UserID: params.BuyerID, TenantID: &auction.TenantID, Role: "buyer"}
		event := outbox.DomainEvent{
			EventType:     enums.EventBuyNowPurchased,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Actor:         actor,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.BuyNowPurchasedEvent{
				AuctionID:   auction.ID,
				BuyerID:     params.BuyerID,
				AmountCents: total,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if err := s.requestNotification(ctx, tx, auction.ID, auction.TenantID, auction.SellerID, enums.NotificationTypeAuctionWon, now); err != nil {
			return err
		}

		chargeReq = &payments.ChargeRequest{
			PlanRef:     planRef,
			Description: fmt.Sprintf("BidHaus buy-now: %s", auction.Title),
			Currency:    auction.Currency.String(),
			Metadata: types.ChargeMetadata{
				AuctionID:         auction.ID,
				BuyerID:           params.BuyerID,
				TotalCents:        breakdown.TotalCents,
				PlatformFeeCents:  breakdown.PlatformFeeCents,
				CommunityFeeCents: breakdown.CommunityFeeCents,
				SellerCents:       breakdown.SellerCents,
			},
		}
		purchased = auction
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Charge failures are discovered asynchronously; the buyer sees the
	// purchase accepted and payment state resolves through reconciliation.
	if chargeReq != nil {
		if err := s.createCharge(ctx, params.AuctionID, barracksItemID, *chargeReq); err != nil {
			s.logg.Error(ctx, "buy-now charge creation failed", err)
		}
	}
	return purchased, nil
}

// RetryCharge re-issues charge creation for a pending entry whose charge was
// never created, typically because the collaborator was unreachable during
// finalization.
func (s *service) RetryCharge(ctx context.Context, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}

	var chargeReq *payments.ChargeRequest
	var barracksItemID uuid.UUID

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, auctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.Status != enums.AuctionStatusPendingPayment || auction.WinnerID == nil || auction.PlanRef == nil {
			return nil
		}
		item, err := s.barracks.WithTx(tx).FindByAuctionID(ctx, auction.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load barracks entry")
		}
		if item.ChargeRef != nil && *item.ChargeRef != "" {
			return nil
		}

		breakdown, err := commission.Calculate(item.AmountCents, auction.PlatformFeePercent, auction.CommunityFeePercent)
		if err != nil {
			return err
		}
		chargeReq = &payments.ChargeRequest{
			PlanRef:     *auction.PlanRef,
			Description: fmt.Sprintf("BidHaus auction: %s", auction.Title),
			Currency:    auction.Currency.String(),
			Metadata: types.ChargeMetadata{
				AuctionID:         auction.ID,
				BuyerID:           item.UserID,
				TotalCents:        breakdown.TotalCents,
				PlatformFeeCents:  breakdown.PlatformFeeCents,
				CommunityFeeCents: breakdown.CommunityFeeCents,
				SellerCents:       breakdown.SellerCents,
			},
		}
		barracksItemID = item.ID
		return nil
	})
	if err != nil {
		return err
	}
	if chargeReq == nil {
		return nil
	}
	return s.createCharge(ctx, auctionID, barracksItemID, *chargeReq)
}

// createCharge runs outside any transaction: it is a blocking network call.
// A definitive rejection compensates immediately; a transient failure leaves
// the entry for the scheduler to retry.
func (s *service) createCharge(ctx context.Context, auctionID, barracksItemID uuid.UUID, req payments.ChargeRequest) error {
	result, err := s.charger.Charge(ctx, req)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeDependencyHard) {
			if resetErr := s.ResetOnFailure(ctx, ResetParams{AuctionID: auctionID, Observed: enums.ChargeStatusFailed}); resetErr != nil {
				s.logg.Error(ctx, "failed to reset auction after charge rejection", resetErr)
			}
		}
		return err
	}
	if result.Status.IsTerminalFailure() {
		if resetErr := s.ResetOnFailure(ctx, ResetParams{AuctionID: auctionID, Observed: result.Status}); resetErr != nil {
			s.logg.Error(ctx, "failed to reset auction after charge failure", resetErr)
		}
		return pkgerrors.New(pkgerrors.CodeDependencyHard,
			fmt.Sprintf("charge ended %s before settlement", result.Status))
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetChargeRefs(ctx, auctionID, result.PlanRef, result.ChargeRef); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record charge on auction")
		}
		if err := s.barracks.WithTx(tx).SetChargeRefs(ctx, barracksItemID, result.PlanRef, result.ChargeRef); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record charge on barracks entry")
		}
		return nil
	})
}

// ConfirmSettled advances a pending-payment auction to paid (and a digital
// one straight through to fulfilled) in one transaction. The reconciliation
// worker and the webhook fast path both land here.
func (s *service) ConfirmSettled(ctx context.Context, params SettleParams) error {
	if params.AuctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if params.ChargeRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge ref required")
	}
	if params.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if params.PlanRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan ref required")
	}
	if params.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	paidAt := params.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	var disburse *payouts.DisburseParams

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.Status != enums.AuctionStatusPendingPayment || auction.WinnerID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting payment")
		}
		buyerID := *auction.WinnerID
		if params.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment buyer does not match auction winner")
		}
		if auction.PlanRef == nil || *auction.PlanRef != params.PlanRef {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment plan ref does not match auction")
		}

		item, err := s.barracks.WithTx(tx).FindByAuctionID(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load barracks entry")
		}
		if params.AmountCents != item.AmountCents {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment amount does not match amount owed")
		}
		breakdown, err := commission.Calculate(item.AmountCents, auction.PlatformFeePercent, auction.CommunityFeePercent)
		if err != nil {
			return err
		}
		tenant, err := repo.FindTenant(ctx, auction.TenantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
		}

		applied, err := confirmPaid(ctx, repo, auction.ID, params.ChargeRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting payment")
		}
		if _, err := s.barracks.WithTx(tx).MarkPaid(ctx, item.ID, params.ChargeRef, paidAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark barracks entry paid")
		}

		if auction.ItemKind.RequiresShipping() {
			record := &models.FulfillmentRecord{
				ID:        uuid.New(),
				AuctionID: auction.ID,
				BuyerID:   buyerID,
				SellerID:  auction.SellerID,
				Status:    enums.ShippingStatusPendingShip,
			}
			if err := s.fulfillment.WithTx(tx).Create(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fulfillment record")
			}
		} else {
			// Digital delivery is instantaneous; the fulfilled status is
			// still recorded explicitly, never inferred.
			if _, err := markFulfilled(ctx, repo, auction.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fold digital auction to fulfilled")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			OccurredAt:    paidAt,
			Data: payloads.PaymentSettledEvent{
				AuctionID:         auction.ID,
				BuyerID:           buyerID,
				ChargeRef:         params.ChargeRef,
				TotalCents:        breakdown.TotalCents,
				PlatformFeeCents:  breakdown.PlatformFeeCents,
				CommunityFeeCents: breakdown.CommunityFeeCents,
				SellerCents:       breakdown.SellerCents,
				PaidAt:            paidAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if err := s.requestNotification(ctx, tx, auction.ID, auction.TenantID, buyerID, enums.NotificationTypePaymentSettled, paidAt); err != nil {
			return err
		}

		disburse = &payouts.DisburseParams{
			AuctionID:        auction.ID,
			ChargeRef:        params.ChargeRef,
			Currency:         auction.Currency,
			Breakdown:        breakdown,
			SellerID:         auction.SellerID,
			CommunityOwnerID: tenant.CommunityOwnerID,
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Payout failures are reported, never thrown: the settlement stands and
	// the disbursement is retried from the recorded attempts.
	if disburse != nil {
		result, err := s.payouts.Disburse(ctx, *disburse)
		if err != nil {
			s.logg.Error(ctx, "payout disbursement failed", err)
		} else if !result.Success {
			for _, payoutErr := range result.Errors {
				s.logg.Error(ctx, "payout transfer failed", payoutErr)
			}
		}
	}
	return nil
}

// ResetOnFailure compensates for a terminally failed charge: the winner and
// references are cleared, the barracks entry removed, and the auction
// returns to ended. Bids stay immutable history.
func (s *service) ResetOnFailure(ctx context.Context, params ResetParams) error {
	if params.AuctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.Status != enums.AuctionStatusPendingPayment || auction.WinnerID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting payment")
		}
		clearedUser := *auction.WinnerID
		previousCharge := ""
		if auction.ChargeRef != nil {
			previousCharge = *auction.ChargeRef
		}

		applied, err := resetToEnded(ctx, repo, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset auction")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting payment")
		}
		if err := s.barracks.WithTx(tx).DeleteByAuctionID(ctx, auction.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove barracks entry")
		}

		now := s.now().UTC()
		failedEvent := outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PaymentFailedEvent{
				AuctionID: auction.ID,
				BuyerID:   clearedUser,
				ChargeRef: previousCharge,
				Status:    params.Observed,
			},
		}
		if err := s.outbox.Emit(ctx, tx, failedEvent); err != nil {
			return err
		}
		resetEvent := outbox.DomainEvent{
			EventType:     enums.EventAuctionReset,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.AuctionResetEvent{
				AuctionID:      auction.ID,
				ClearedUserID:  clearedUser,
				PreviousCharge: previousCharge,
			},
		}
		if err := s.outbox.Emit(ctx, tx, resetEvent); err != nil {
			return err
		}
		return s.requestNotification(ctx, tx, auction.ID, auction.TenantID, clearedUser, enums.NotificationTypePaymentFailed, now)
	})
}

// ConfirmReceipt completes a physical auction after the buyer confirms
// delivery.
func (s *service) ConfirmReceipt(ctx context.Context, params ReceiptParams) error {
	if params.TenantID == uuid.Nil || params.AuctionID == uuid.Nil || params.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant, auction, and buyer ids required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindByIDForUpdate(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.TenantID != params.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		if auction.WinnerID == nil || *auction.WinnerID != params.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the winner can confirm receipt")
		}
		if auction.Status != enums.AuctionStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting receipt confirmation")
		}

		now := s.now().UTC()
		if auction.ItemKind.RequiresShipping() {
			delivered, err := s.fulfillment.WithTx(tx).MarkDelivered(ctx, auction.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark delivered")
			}
			if !delivered {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "item has not shipped yet")
			}
		}

		applied, err := markFulfilled(ctx, repo, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark fulfilled")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting receipt confirmation")
		}

		item, err := s.barracks.WithTx(tx).FindByAuctionID(ctx, auction.ID)
		if err == nil {
			if _, err := s.barracks.WithTx(tx).UpdateStatus(ctx, item.ID, enums.BarracksStatusPaid, enums.BarracksStatusDelivered); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update barracks entry")
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load barracks entry")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventItemDelivered,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Actor:         &outbox.ActorRef{UserID: params.BuyerID, TenantID: &auction.TenantID, Role: "buyer"},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.ItemDeliveredEvent{
				AuctionID: auction.ID,
				BuyerID:   params.BuyerID,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}

// enqueueOutcomeNotifications fans out the post-finalization notifications:
// winner, seller, losing bidders. Best effort through the outbox; a delivery
// failure can never roll back the transition.
func (s *service) enqueueOutcomeNotifications(ctx context.Context, tx *gorm.DB, auction *models.Auction, winnerID uuid.UUID, now time.Time) error {
	if err := s.requestNotification(ctx, tx, auction.ID, auction.TenantID, winnerID, enums.NotificationTypeAuctionWon, now); err != nil {
		return err
	}
	if err := s.requestNotification(ctx, tx, auction.ID, auction.TenantID, auction.SellerID, enums.NotificationTypeAuctionEnded, now); err != nil {
		return err
	}
	bidders, err := s.bids.DistinctBidders(ctx, auction.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bidders")
	}
	for _, bidder := range bidders {
		if bidder == winnerID {
			continue
		}
		if err := s.requestNotification(ctx, tx, auction.ID, auction.TenantID, bidder, enums.NotificationTypeAuctionEnded, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) requestNotification(ctx context.Context, tx *gorm.DB, auctionID, tenantID, userID uuid.UUID, kind enums.NotificationType, now time.Time) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Version:       1,
		OccurredAt:    now,
		Data: payloads.NotificationRequestedEvent{
			AuctionID: auctionID,
			UserID:    userID,
			TenantID:  tenantID,
			Type:      kind,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}
