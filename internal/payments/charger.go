package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/square"
	"github.com/bidhaus/bidhaus-backend/pkg/types"
)

// ChargeRequest describes one off-session charge against a winning buyer.
type ChargeRequest struct {
	PlanRef     string
	Description string
	Metadata    types.ChargeMetadata
	Currency    string
}

// ChargeResult is the collaborator's answer. ChargeRef is empty when the
// charge was rejected before a payment existed.
type ChargeResult struct {
	Status    enums.ChargeStatus
	ChargeRef string
	PlanRef   string
}

// Charger creates charges against the payment collaborator.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type squareClient interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	ListPayments(ctx context.Context, params square.PaymentListParams) ([]*sq.Payment, error)
	LocationID() string
}

// chargeIdempotencyKey is deterministic per plan reference: a retry after a
// lost CreatePayment response replays the same Square payment instead of
// charging the buyer twice. A re-won auction mints a fresh plan ref, so
// cycles never collide.
func chargeIdempotencyKey(planRef string) string {
	return "charge-" + planRef
}

// SquareCharger charges buyers through Square using their vaulted card.
type SquareCharger struct {
	client   squareClient
	profiles ProfileRepository
	logg     *logger.Logger
}

// NewSquareCharger wires the Square-backed charge collaborator.
func NewSquareCharger(client squareClient, profiles ProfileRepository, logg *logger.Logger) (*SquareCharger, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client required")
	}
	if profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment profile repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &SquareCharger{client: client, profiles: profiles, logg: logg}, nil
}

// Charge creates a payment for the buyer named in the request metadata. The
// metadata is serialized into the payment note so a later poll or webhook can
// recover the auction context without trusting Square's filters.
func (c *SquareCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := req.Metadata.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge request")
	}
	if req.PlanRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan reference required")
	}

	profile, err := c.profiles.FindByUserID(ctx, req.Metadata.BuyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeDependencyHard,
				fmt.Sprintf("no payment profile for buyer %s", req.Metadata.BuyerID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment profile")
	}

	note, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode charge metadata")
	}

	payment, err := c.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.Metadata.TotalCents,
		Currency:       req.Currency,
		LocationID:     c.client.LocationID(),
		CustomerID:     profile.CustomerRef,
		SourceID:       profile.CardRef,
		IdempotencyKey: chargeIdempotencyKey(req.PlanRef),
		Note:           string(note),
		ReferenceID:    req.PlanRef,
	})
	if err != nil {
		return nil, err
	}

	result := &ChargeResult{
		Status:    chargeStatusFromSquare(stringValue(payment.GetStatus())),
		ChargeRef: stringValue(payment.GetID()),
		PlanRef:   req.PlanRef,
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"auction_id": req.Metadata.AuctionID,
		"charge_ref": result.ChargeRef,
		"status":     result.Status,
	})
	c.logg.Info(logCtx, "charge created")
	return result, nil
}
