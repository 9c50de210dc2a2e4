package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
)

// TransferParams describes a Connect transfer from the platform balance to a
// connected account. The idempotency key must be deterministic so retries of
// the same disbursement reuse the same external transfer.
type TransferParams struct {
	AmountCents    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	TransferGroup  string
	Metadata       map[string]string
}

// CreateTransfer issues a transfer to the destination connected account.
func (c *Client) CreateTransfer(ctx context.Context, p TransferParams) (*stripe.Transfer, error) {
	if p.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	destination := strings.TrimSpace(p.Destination)
	if destination == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer destination is required")
	}

	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(p.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	if key := strings.TrimSpace(p.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if group := strings.TrimSpace(p.TransferGroup); group != "" {
		params.TransferGroup = stripe.String(group)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	out, err := transfer.New(params)
	if err != nil {
		return nil, mapStripeError(err, "create transfer")
	}
	return out, nil
}

func mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := domainCodeForStatus(stripeErr.HTTPStatusCode)
		if stripeErr.Code == stripe.ErrorCodeIdempotencyKeyInUse {
			code = pkgerrors.CodeIdempotency
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
