package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Every status edge lives here as one compare-and-swap function. Callers that
// used to inline "is it live and not expired" checks go through these
// instead, so losing a race surfaces as a benign false rather than a
// silently overwritten row.

// EffectiveStatus derives the status a reader should act on. A scheduled
// auction whose start time has passed is already biddable even if the
// scheduler has not flipped the row yet.
func EffectiveStatus(auction *models.Auction, now time.Time) enums.AuctionStatus {
	if auction.Status == enums.AuctionStatusScheduled && !now.Before(auction.StartAt) {
		return enums.AuctionStatusLive
	}
	return auction.Status
}

// goLive flips a scheduled auction to live once its start time has passed.
// Purely a visibility change, no side effects.
func goLive(ctx context.Context, repo Repository, auctionID uuid.UUID, startAt, now time.Time) (bool, error) {
	if now.Before(startAt) {
		return false, nil
	}
	return repo.Transition(ctx, auctionID, enums.AuctionStatusScheduled, enums.AuctionStatusLive, nil)
}

// endWithoutWinner closes a live auction that attracted no bids.
func endWithoutWinner(ctx context.Context, repo Repository, auctionID uuid.UUID) (bool, error) {
	return repo.Transition(ctx, auctionID, enums.AuctionStatusLive, enums.AuctionStatusEnded, nil)
}

// beginPendingPayment moves a live auction into payment collection with the
// winner recorded. winningBidID is nil on the buy-now path. The plan
// reference is minted fresh per win so a re-won auction never matches a
// previous cycle's payments.
func beginPendingPayment(ctx context.Context, repo Repository, auctionID, winnerID uuid.UUID, winningBidID *uuid.UUID, planRef string) (bool, error) {
	updates := map[string]any{
		"winner_id":      winnerID,
		"winning_bid_id": winningBidID,
		"plan_ref":       planRef,
	}
	return repo.Transition(ctx, auctionID, enums.AuctionStatusLive, enums.AuctionStatusPendingPayment, updates)
}

// confirmPaid records the settled charge reference on the way to paid.
func confirmPaid(ctx context.Context, repo Repository, auctionID uuid.UUID, chargeRef string) (bool, error) {
	updates := map[string]any{
		"charge_ref": chargeRef,
	}
	return repo.Transition(ctx, auctionID, enums.AuctionStatusPendingPayment, enums.AuctionStatusPaid, updates)
}

// markFulfilled completes the lifecycle: buyer confirmed receipt, or the
// item is digital and delivery is instantaneous.
func markFulfilled(ctx context.Context, repo Repository, auctionID uuid.UUID) (bool, error) {
	return repo.Transition(ctx, auctionID, enums.AuctionStatusPaid, enums.AuctionStatusFulfilled, nil)
}

// resetToEnded compensates for a failed, canceled, or refunded charge. The
// winner and charge references are cleared; the bid ledger is untouched, so
// the next finalize sweep can re-award from the remaining bids.
func resetToEnded(ctx context.Context, repo Repository, auctionID uuid.UUID) (bool, error) {
	updates := map[string]any{
		"winner_id":      nil,
		"winning_bid_id": nil,
		"charge_ref":     nil,
		"plan_ref":       nil,
	}
	return repo.Transition(ctx, auctionID, enums.AuctionStatusPendingPayment, enums.AuctionStatusEnded, updates)
}

// reawardFromEnded moves a reset auction back into payment collection for
// the ledger's high bid. The fresh plan ref keeps payment cycles apart.
func reawardFromEnded(ctx context.Context, repo Repository, auctionID, winnerID uuid.UUID, winningBidID *uuid.UUID, planRef string) (bool, error) {
	updates := map[string]any{
		"winner_id":      winnerID,
		"winning_bid_id": winningBidID,
		"plan_ref":       planRef,
	}
	return repo.Transition(ctx, auctionID, enums.AuctionStatusEnded, enums.AuctionStatusPendingPayment, updates)
}
