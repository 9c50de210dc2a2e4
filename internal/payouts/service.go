package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/commission"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

// Service disburses a settled auction's proceeds.
type Service interface {
	Disburse(ctx context.Context, params DisburseParams) (*DisburseResult, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transferClient interface {
	CreateTransfer(ctx context.Context, params stripe.TransferParams) (*stripesdk.Transfer, error)
}

// ServiceParams wire payout dependencies.
type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Transfers transferClient
	Outbox    outboxEmitter
	Logger    *logger.Logger
}

type service struct {
	db        txRunner
	repo      Repository
	transfers transferClient
	outbox    outboxEmitter
	logg      *logger.Logger
}

// DisburseParams carry everything a disbursement needs so a retry never has
// to re-derive the breakdown.
type DisburseParams struct {
	AuctionID        uuid.UUID
	ChargeRef        string
	Currency         enums.Currency
	Breakdown        commission.Breakdown
	SellerID         uuid.UUID
	CommunityOwnerID uuid.UUID
}

// DisburseResult reports per-transfer outcomes. A payout failure is never an
// error from Disburse itself; callers inspect Success and retry later.
type DisburseResult struct {
	Success bool
	Issued  int
	Skipped int
	Errors  []error
}

// NewService wires payout dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payouts repository required")
	}
	if params.Transfers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transfer client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		transfers: params.Transfers,
		outbox:    params.Outbox,
		logg:      params.Logger,
	}, nil
}

// IdempotencyKey derives the deterministic key for one transfer leg. The
// charge reference is the uniqueness token: a re-won auction settles under a
// new charge and must not collide with a previous cycle's payouts.
func IdempotencyKey(auctionID uuid.UUID, role enums.PayoutRole, chargeRef string) string {
	return fmt.Sprintf("payout:%s:%s:%s", auctionID, role, chargeRef)
}

// Disburse issues up to two transfers: the community fee to the community
// owner and the seller amount to the seller. Legs fail independently; one
// failing never blocks the other.
func (s *service) Disburse(ctx context.Context, params DisburseParams) (*DisburseResult, error) {
	if params.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if params.ChargeRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge ref required")
	}
	if params.SellerID == uuid.Nil || params.CommunityOwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller and community owner ids required")
	}

	legs := []struct {
		role        enums.PayoutRole
		recipientID uuid.UUID
		amountCents int64
	}{
		{role: enums.PayoutRoleCommunity, recipientID: params.CommunityOwnerID, amountCents: params.Breakdown.CommunityFeeCents},
		{role: enums.PayoutRoleSeller, recipientID: params.SellerID, amountCents: params.Breakdown.SellerCents},
	}

	result := &DisburseResult{Success: true}
	for _, leg := range legs {
		if leg.amountCents == 0 {
			result.Skipped++
			continue
		}
		issued, err := s.disburseLeg(ctx, params, leg.role, leg.recipientID, leg.amountCents)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Errorf("%s payout: %w", leg.role, err))
			continue
		}
		if issued {
			result.Issued++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// disburseLeg reports whether a new transfer was issued; false means an
// earlier run already issued it.
func (s *service) disburseLeg(ctx context.Context, params DisburseParams, role enums.PayoutRole, recipientID uuid.UUID, amountCents int64) (bool, error) {
	key := IdempotencyKey(params.AuctionID, role, params.ChargeRef)

	record, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout transfer")
	}
	if record != nil && record.Status == enums.PayoutStatusIssued {
		return false, nil
	}

	accountRef, err := s.repo.FindAccountRef(ctx, recipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeDependency,
				fmt.Sprintf("no payout account for recipient %s", recipientID))
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}

	if record == nil {
		record = &models.PayoutTransfer{
			ID:             uuid.New(),
			AuctionID:      params.AuctionID,
			Role:           role,
			RecipientID:    recipientID,
			AccountRef:     accountRef,
			AmountCents:    amountCents,
			Currency:       params.Currency,
			IdempotencyKey: key,
			Status:         enums.PayoutStatusPending,
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout attempt")
		}
	}

	transfer, err := s.transfers.CreateTransfer(ctx, stripe.TransferParams{
		AmountCents:    amountCents,
		Currency:       params.Currency.String(),
		Destination:    accountRef,
		IdempotencyKey: key,
		TransferGroup:  params.AuctionID.String(),
		Metadata: map[string]string{
			"auction_id": params.AuctionID.String(),
			"role":       role.String(),
			"charge_ref": params.ChargeRef,
		},
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logg.Error(ctx, "failed to record payout failure", markErr)
		}
		return false, err
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkIssued(ctx, record.ID, transfer.ID); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutIssued,
			AggregateType: enums.AggregatePayout,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    time.Now().UTC(),
			Data: payloads.PayoutIssuedEvent{
				AuctionID:   params.AuctionID,
				Role:        role,
				RecipientID: recipientID,
				AmountCents: amountCents,
				TransferRef: transfer.ID,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record issued payout")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"auction_id":   params.AuctionID,
		"role":         role,
		"amount":       amountCents,
		"transfer_ref": transfer.ID,
	})
	s.logg.Info(logCtx, "payout issued")
	return true, nil
}

func (s *service) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	transfers, err := s.repo.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout transfers")
	}
	return transfers, nil
}
