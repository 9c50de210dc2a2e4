package squarewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/types"
)

type auctionSettler interface {
	ConfirmSettled(ctx context.Context, params auctions.SettleParams) error
	ResetOnFailure(ctx context.Context, params auctions.ResetParams) error
}

// ServiceParams configure the Square webhook service.
type ServiceParams struct {
	Auctions auctionSettler
	Logger   *logger.Logger
}

// Service is the webhook fast path for payment status changes. Reconciliation
// remains the source of truth; anything ambiguous here is dropped and left
// for the sweep to pick up.
type Service struct {
	auctions auctionSettler
	logg     *logger.Logger
}

// NewService wires webhook dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Auctions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auction service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{auctions: params.Auctions, logg: params.Logger}, nil
}

// WebhookEvent is the subset of Square's event envelope we consume.
type WebhookEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Data    WebhookData `json:"data"`
}

// WebhookData carries the changed object.
type WebhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object WebhookObject `json:"object"`
}

// WebhookObject wraps the payment payload.
type WebhookObject struct {
	Payment *WebhookPayment `json:"payment"`
}

// WebhookPayment is the payment fields the fast path needs.
type WebhookPayment struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Note        string        `json:"note"`
	ReferenceID string        `json:"reference_id"`
	UpdatedAt   string        `json:"updated_at"`
	AmountMoney *WebhookMoney `json:"amount_money"`
}

// WebhookMoney is a Square money amount.
type WebhookMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// HandleEvent processes a payment.updated event. Payments that do not carry
// our charge metadata in the note belong to someone else and are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	if strings.ToLower(event.Type) != "payment.updated" {
		return nil
	}
	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	var meta types.ChargeMetadata
	if payment.Note == "" || json.Unmarshal([]byte(payment.Note), &meta) != nil || meta.Validate() != nil {
		s.logg.Info(ctx, "payment without charge metadata ignored")
		return nil
	}
	if payment.AmountMoney != nil && payment.AmountMoney.Amount != meta.TotalCents {
		// Amount matching is mandatory; a mismatch is left for reconciliation.
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"auction_id": meta.AuctionID.String(),
			"charge_ref": payment.ID,
		})
		s.logg.Warn(logCtx, "payment amount does not match charge metadata")
		return nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"auction_id": meta.AuctionID.String(),
		"charge_ref": payment.ID,
		"status":     payment.Status,
	})

	switch payment.Status {
	case "COMPLETED":
		if payment.ReferenceID == "" {
			// Without the plan reference the payment cannot be tied to a
			// specific win cycle; reconciliation resolves it from the ledger.
			s.logg.Warn(logCtx, "completed payment missing plan reference, deferred to reconciliation")
			return nil
		}
		paidAt := parseTime(payment.UpdatedAt)
		err := s.auctions.ConfirmSettled(ctx, auctions.SettleParams{
			AuctionID:   meta.AuctionID,
			BuyerID:     meta.BuyerID,
			PlanRef:     payment.ReferenceID,
			ChargeRef:   payment.ID,
			AmountCents: meta.TotalCents,
			PaidAt:      paidAt,
		})
		if err != nil {
			// A state conflict means reconciliation or a duplicate delivery
			// already settled this auction.
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				s.logg.Info(logCtx, "payment already settled")
				return nil
			}
			return err
		}
		s.logg.Info(logCtx, "payment settled via webhook")
		return nil
	case "FAILED", "CANCELED":
		observed := enums.ChargeStatusFailed
		if payment.Status == "CANCELED" {
			observed = enums.ChargeStatusCanceled
		}
		err := s.auctions.ResetOnFailure(ctx, auctions.ResetParams{
			AuctionID: meta.AuctionID,
			Observed:  observed,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				s.logg.Info(logCtx, "auction already reset")
				return nil
			}
			return err
		}
		s.logg.Info(logCtx, "auction reset via webhook")
		return nil
	default:
		return nil
	}
}

func parseTime(raw string) time.Time {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC()
	}
	return time.Now().UTC()
}
