package payments

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/square"
	"github.com/bidhaus/bidhaus-backend/pkg/types"
)

// Reader queries recent payments from the collaborator.
type Reader interface {
	ListRecent(ctx context.Context, since time.Time) ([]Record, error)
}

// SquareReader normalizes Square payments into Records. Payments whose note
// does not carry our charge metadata are not ours and are skipped.
type SquareReader struct {
	client squareClient
	logg   *logger.Logger
}

// NewSquareReader wires the Square-backed payment query collaborator.
func NewSquareReader(client squareClient, logg *logger.Logger) (*SquareReader, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &SquareReader{client: client, logg: logg}, nil
}

func (r *SquareReader) ListRecent(ctx context.Context, since time.Time) ([]Record, error) {
	payments, err := r.client.ListPayments(ctx, square.PaymentListParams{
		BeginTime: since.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(payments))
	skipped := 0
	for _, payment := range payments {
		record, ok := recordFromSquare(payment)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"count":   len(records),
		"skipped": skipped,
	})
	r.logg.Info(logCtx, "payments listed")
	return records, nil
}

func recordFromSquare(payment *sq.Payment) (Record, bool) {
	if payment == nil {
		return Record{}, false
	}
	var meta types.ChargeMetadata
	note := stringValue(payment.GetNote())
	if note == "" || json.Unmarshal([]byte(note), &meta) != nil || meta.Validate() != nil {
		return Record{}, false
	}

	record := Record{
		ChargeRef: stringValue(payment.GetID()),
		PlanRef:   stringValue(payment.GetReferenceID()),
		BuyerID:   meta.BuyerID,
		Status:    chargeStatusFromSquare(stringValue(payment.GetStatus())),
	}
	if money := payment.GetAmountMoney(); money != nil && money.Amount != nil {
		record.AmountCents = *money.Amount
	}
	if record.Status == enums.ChargeStatusCompleted {
		if paidAt := parseSquareTime(payment.GetUpdatedAt()); paidAt != nil {
			record.PaidAt = paidAt
		}
	}
	if refunded := payment.GetRefundedMoney(); refunded != nil && refunded.Amount != nil && *refunded.Amount > 0 {
		record.RefundedAt = parseSquareTime(payment.GetUpdatedAt())
		if record.RefundedAt == nil {
			now := time.Now().UTC()
			record.RefundedAt = &now
		}
	}
	return record, true
}

func chargeStatusFromSquare(status string) enums.ChargeStatus {
	switch status {
	case "COMPLETED":
		return enums.ChargeStatusCompleted
	case "CANCELED":
		return enums.ChargeStatusCanceled
	case "FAILED":
		return enums.ChargeStatusFailed
	default:
		return enums.ChargeStatusPending
	}
}

func parseSquareTime(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
