package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/payments"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/metrics"
)

const (
	defaultReconcileLookback = 24 * time.Hour
	defaultReconcileBatch    = 200
)

// PaymentReconcileJobParams configure the webhook-independent settlement
// sweeper.
type PaymentReconcileJobParams struct {
	Logger      *logger.Logger
	Barracks    pendingItemReader
	Payments    payments.Reader
	Auctions    auctionSettler
	Metrics     *metrics.CronJobMetrics
	Lookback    time.Duration
	BatchSize   int
	ItemTimeout time.Duration
}

type pendingItemReader interface {
	FindPendingWithChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error)
}

type auctionSettler interface {
	ConfirmSettled(ctx context.Context, params auctions.SettleParams) error
	ResetOnFailure(ctx context.Context, params auctions.ResetParams) error
}

// NewPaymentReconcileJob builds the job that cross-checks pending-payment
// entries against the payment collaborator's recent charges. Webhooks are
// the fast path; this sweep is the source of truth when they are dropped.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Barracks == nil {
		return nil, fmt.Errorf("barracks repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments reader required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auction service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	itemTimeout := params.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	return &paymentReconcileJob{
		logg:        params.Logger,
		barracks:    params.Barracks,
		payments:    params.Payments,
		auctions:    params.Auctions,
		metrics:     params.Metrics,
		lookback:    lookback,
		batch:       batch,
		itemTimeout: itemTimeout,
		now:         time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg        *logger.Logger
	barracks    pendingItemReader
	payments    payments.Reader
	auctions    auctionSettler
	metrics     *metrics.CronJobMetrics
	lookback    time.Duration
	batch       int
	itemTimeout time.Duration
	now         func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	pending, err := j.barracks.FindPendingWithChargeRef(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("query pending payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	since := j.now().UTC().Add(-j.lookback)
	listCtx, cancelList := itemContext(ctx, j.itemTimeout)
	records, err := j.payments.ListRecent(listCtx, since)
	cancelList()
	if err != nil {
		return fmt.Errorf("list recent payments: %w", asTransient(err))
	}

	var errs []error
	settled, reset := 0, 0
	for _, item := range pending {
		itemCtx, cancel := itemContext(ctx, j.itemTimeout)
		outcome, err := j.reconcileItem(itemCtx, item, records)
		cancel()
		if err != nil {
			err = asTransient(err)
			errCtx := j.logg.WithField(ctx, "auction_id", item.AuctionID.String())
			j.logg.Error(errCtx, "payment reconcile failed", err)
			errs = append(errs, fmt.Errorf("reconcile auction %s: %w", item.AuctionID, err))
			continue
		}
		switch outcome {
		case "settled":
			settled++
		case "reset":
			reset++
		}
	}
	j.addItems("settled", settled)
	j.addItems("reset", reset)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  len(pending),
		"settled":  settled,
		"reset":    reset,
		"failures": len(errs),
	})
	j.logg.Info(logCtx, "payment reconcile sweep complete")
	return multierr.Combine(errs...)
}

func (j *paymentReconcileJob) reconcileItem(ctx context.Context, item models.BarracksItem, records []payments.Record) (string, error) {
	if item.PlanRef == nil || *item.PlanRef == "" {
		return "", nil
	}
	planRef := *item.PlanRef

	if record, ok := payments.MatchSettled(records, item.UserID, planRef, item.AmountCents); ok {
		paidAt := j.now().UTC()
		if record.PaidAt != nil {
			paidAt = *record.PaidAt
		}
		err := j.auctions.ConfirmSettled(ctx, auctions.SettleParams{
			AuctionID:   item.AuctionID,
			BuyerID:     item.UserID,
			PlanRef:     planRef,
			ChargeRef:   record.ChargeRef,
			AmountCents: item.AmountCents,
			PaidAt:      paidAt,
		})
		if err != nil {
			return "", err
		}
		return "settled", nil
	}

	if record, ok := payments.MatchTerminalFailure(records, item.UserID, planRef); ok {
		err := j.auctions.ResetOnFailure(ctx, auctions.ResetParams{
			AuctionID: item.AuctionID,
			Observed:  record.Status,
		})
		if err != nil {
			return "", err
		}
		return "reset", nil
	}

	return "", nil
}

func (j *paymentReconcileJob) addItems(outcome string, count int) {
	if j.metrics == nil || count == 0 {
		return
	}
	j.metrics.AddItems(j.Name(), outcome, count)
}
