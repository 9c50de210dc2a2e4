package fulfillment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
)

// Service defines shipping and dispute operations on fulfillment records.
// Receipt confirmation lives in internal/auctions because it also advances
// the auction's status.
type Service interface {
	Get(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error)
	MarkShipped(ctx context.Context, params ShipParams) error
	Dispute(ctx context.Context, params DisputeParams) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wire fulfillment dependencies.
type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Outbox outboxEmitter
	Logger *logger.Logger
}

type service struct {
	db     txRunner
	repo   Repository
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// ShipParams carry a seller's shipping confirmation.
type ShipParams struct {
	AuctionID   uuid.UUID
	SellerID    uuid.UUID
	TrackingRef string
}

// DisputeParams carry a buyer's dispute.
type DisputeParams struct {
	AuctionID uuid.UUID
	BuyerID   uuid.UUID
	Reason    string
}

// NewService wires fulfillment dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fulfillment repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	record, err := s.repo.FindByAuctionID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfillment record")
	}
	return record, nil
}

func (s *service) MarkShipped(ctx context.Context, params ShipParams) error {
	if params.AuctionID == uuid.Nil || params.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction and seller ids required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByAuctionID(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfillment record")
		}
		if record.SellerID != params.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can mark an item shipped")
		}

		now := s.now().UTC()
		var trackingRef *string
		if trimmed := strings.TrimSpace(params.TrackingRef); trimmed != "" {
			trackingRef = &trimmed
		}
		updated, err := repo.MarkShipped(ctx, params.AuctionID, trackingRef, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark shipped")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item is not awaiting shipment")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventItemShipped,
			AggregateType: enums.AggregateAuction,
			AggregateID:   params.AuctionID,
			Actor:         &outbox.ActorRef{UserID: params.SellerID, Role: "seller"},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.ItemShippedEvent{
				AuctionID:   params.AuctionID,
				BuyerID:     record.BuyerID,
				TrackingRef: strings.TrimSpace(params.TrackingRef),
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}

func (s *service) Dispute(ctx context.Context, params DisputeParams) error {
	if params.AuctionID == uuid.Nil || params.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction and buyer ids required")
	}
	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByAuctionID(ctx, params.AuctionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfillment record")
		}
		if record.BuyerID != params.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can dispute a fulfillment")
		}

		updated, err := repo.MarkDisputed(ctx, params.AuctionID, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark disputed")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "fulfillment is already disputed")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventFulfillmentDisputed,
			AggregateType: enums.AggregateAuction,
			AggregateID:   params.AuctionID,
			Actor:         &outbox.ActorRef{UserID: params.BuyerID, Role: "buyer"},
			Version:       1,
			OccurredAt:    s.now().UTC(),
			Data: payloads.FulfillmentDisputedEvent{
				AuctionID: params.AuctionID,
				BuyerID:   params.BuyerID,
				Reason:    reason,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
}
