package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/metrics"
)

const (
	defaultFinalizeBatchSize = 100
	defaultItemTimeout       = 15 * time.Second
)

// AuctionFinalizeJobParams configure the auction lifecycle sweeper.
type AuctionFinalizeJobParams struct {
	Logger      *logger.Logger
	Auctions    auctionLifecycle
	Repo        expiredAuctionReader
	Barracks    stalledChargeReader
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
	ItemTimeout time.Duration
}

type auctionLifecycle interface {
	ActivateDue(ctx context.Context, limit int) (int, error)
	Finalize(ctx context.Context, auctionID uuid.UUID) (auctions.FinalizeOutcome, error)
	RetryCharge(ctx context.Context, auctionID uuid.UUID) error
}

type expiredAuctionReader interface {
	FindExpiredLive(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	FindEndedAwaitingReaward(ctx context.Context, limit int) ([]models.Auction, error)
}

type stalledChargeReader interface {
	FindPendingMissingChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error)
}

// NewAuctionFinalizeJob builds the job that activates due auctions, closes
// expired ones, and retries charge creation for wins whose charge never
// reached the payment collaborator.
func NewAuctionFinalizeJob(params AuctionFinalizeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auction service required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.Barracks == nil {
		return nil, fmt.Errorf("barracks repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultFinalizeBatchSize
	}
	itemTimeout := params.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	return &auctionFinalizeJob{
		logg:        params.Logger,
		auctions:    params.Auctions,
		repo:        params.Repo,
		barracks:    params.Barracks,
		metrics:     params.Metrics,
		batch:       batch,
		itemTimeout: itemTimeout,
		now:         time.Now,
	}, nil
}

type auctionFinalizeJob struct {
	logg        *logger.Logger
	auctions    auctionLifecycle
	repo        expiredAuctionReader
	barracks    stalledChargeReader
	metrics     *metrics.CronJobMetrics
	batch       int
	itemTimeout time.Duration
	now         func() time.Time
}

func (j *auctionFinalizeJob) Name() string { return "auction-finalize" }

func (j *auctionFinalizeJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.activateDue(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.finalizeExpired(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.retryStalledCharges(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *auctionFinalizeJob) activateDue(ctx context.Context) error {
	activated, err := j.auctions.ActivateDue(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("activate due auctions: %w", err)
	}
	if activated > 0 {
		j.addItems("activated", activated)
		logCtx := j.logg.WithFields(ctx, map[string]any{"count": activated})
		j.logg.Info(logCtx, "scheduled auctions went live")
	}
	return nil
}

func (j *auctionFinalizeJob) finalizeExpired(ctx context.Context) error {
	expired, err := j.repo.FindExpiredLive(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query expired live auctions: %w", err)
	}
	// Auctions a failed charge pushed back to ended rejoin the sweep so the
	// remaining ledger can produce a new winner.
	resettable, err := j.repo.FindEndedAwaitingReaward(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("query ended auctions awaiting reaward: %w", err)
	}
	expired = append(expired, resettable...)
	var errs []error
	counts := map[auctions.FinalizeOutcome]int{}
	for _, auction := range expired {
		itemCtx, cancel := itemContext(ctx, j.itemTimeout)
		outcome, err := j.auctions.Finalize(itemCtx, auction.ID)
		cancel()
		if err != nil {
			// One stuck auction must not block the rest of the batch.
			err = asTransient(err)
			errCtx := j.logg.WithField(ctx, "auction_id", auction.ID.String())
			j.logg.Error(errCtx, "auction finalize failed", err)
			errs = append(errs, fmt.Errorf("finalize auction %s: %w", auction.ID, err))
			continue
		}
		counts[outcome]++
	}
	for outcome, count := range counts {
		j.addItems(string(outcome), count)
	}
	if len(expired) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned":  len(expired),
			"won":      counts[auctions.FinalizeOutcomeWon],
			"no_sale":  counts[auctions.FinalizeOutcomeEnded],
			"skipped":  counts[auctions.FinalizeOutcomeSkipped],
			"failures": len(errs),
		})
		j.logg.Info(logCtx, "auction finalize sweep complete")
	}
	return multierr.Combine(errs...)
}

func (j *auctionFinalizeJob) retryStalledCharges(ctx context.Context) error {
	stalled, err := j.barracks.FindPendingMissingChargeRef(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("query stalled pending charges: %w", err)
	}
	var errs []error
	retried := 0
	for _, item := range stalled {
		itemCtx, cancel := itemContext(ctx, j.itemTimeout)
		err := j.auctions.RetryCharge(itemCtx, item.AuctionID)
		cancel()
		if err != nil {
			err = asTransient(err)
			errCtx := j.logg.WithField(ctx, "auction_id", item.AuctionID.String())
			j.logg.Error(errCtx, "charge retry failed", err)
			errs = append(errs, fmt.Errorf("retry charge for auction %s: %w", item.AuctionID, err))
			continue
		}
		retried++
	}
	if len(stalled) > 0 {
		j.addItems("charge_retried", retried)
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned": len(stalled),
			"retried": retried,
		})
		j.logg.Info(logCtx, "stalled charge retry sweep complete")
	}
	return multierr.Combine(errs...)
}

func (j *auctionFinalizeJob) addItems(outcome string, count int) {
	if j.metrics == nil {
		return
	}
	j.metrics.AddItems(j.Name(), outcome, count)
}
