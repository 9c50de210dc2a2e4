package auctions

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/barracks"
	"github.com/bidhaus/bidhaus-backend/internal/fulfillment"
	"github.com/bidhaus/bidhaus-backend/internal/payments"
	"github.com/bidhaus/bidhaus-backend/internal/payouts"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubAuctionRepo struct {
	auction     *models.Auction
	tenant      *models.Tenant
	created     *models.Auction
	chargeRefs  []string
	transitions []enums.AuctionStatus
	termUpdates map[string]any
}

func (s *stubAuctionRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubAuctionRepo) Create(ctx context.Context, auction *models.Auction) error {
	s.created = auction
	return nil
}

func (s *stubAuctionRepo) FindByID(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error) {
	if s.auction == nil || s.auction.ID != auctionID || s.auction.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.auction, nil
}

func (s *stubAuctionRepo) FindByIDForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	if s.auction == nil || s.auction.ID != auctionID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.auction, nil
}

func (s *stubAuctionRepo) List(ctx context.Context, params ListAuctionsParams) ([]models.Auction, *pagination.Cursor, error) {
	if s.auction == nil {
		return nil, nil, nil
	}
	return []models.Auction{*s.auction}, nil, nil
}

func (s *stubAuctionRepo) FindExpiredLive(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	if s.auction == nil || s.auction.Status != enums.AuctionStatusLive || now.Before(s.auction.EndAt) {
		return nil, nil
	}
	return []models.Auction{*s.auction}, nil
}

func (s *stubAuctionRepo) FindEndedAwaitingReaward(ctx context.Context, limit int) ([]models.Auction, error) {
	if s.auction == nil || s.auction.Status != enums.AuctionStatusEnded || s.auction.WinnerID != nil {
		return nil, nil
	}
	return []models.Auction{*s.auction}, nil
}

func (s *stubAuctionRepo) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	if s.auction == nil || s.auction.Status != enums.AuctionStatusScheduled || now.Before(s.auction.StartAt) {
		return nil, nil
	}
	return []models.Auction{*s.auction}, nil
}

func (s *stubAuctionRepo) SetChargeRefs(ctx context.Context, auctionID uuid.UUID, planRef, chargeRef string) error {
	s.chargeRefs = append(s.chargeRefs, chargeRef)
	if s.auction != nil && s.auction.ID == auctionID {
		s.auction.PlanRef = &planRef
		s.auction.ChargeRef = &chargeRef
	}
	return nil
}

func (s *stubAuctionRepo) UpdateTerms(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error {
	s.termUpdates = updates
	return nil
}

func (s *stubAuctionRepo) Transition(ctx context.Context, auctionID uuid.UUID, from, to enums.AuctionStatus, updates map[string]any) (bool, error) {
	if s.auction == nil || s.auction.ID != auctionID || s.auction.Status != from {
		return false, nil
	}
	s.auction.Status = to
	s.transitions = append(s.transitions, to)
	for key, value := range updates {
		switch key {
		case "winner_id":
			switch v := value.(type) {
			case uuid.UUID:
				s.auction.WinnerID = &v
			case nil:
				s.auction.WinnerID = nil
			}
		case "winning_bid_id":
			switch v := value.(type) {
			case *uuid.UUID:
				s.auction.WinningBidID = v
			case nil:
				s.auction.WinningBidID = nil
			}
		case "charge_ref":
			switch v := value.(type) {
			case string:
				s.auction.ChargeRef = &v
			case nil:
				s.auction.ChargeRef = nil
			}
		case "plan_ref":
			switch v := value.(type) {
			case string:
				s.auction.PlanRef = &v
			case nil:
				s.auction.PlanRef = nil
			}
		}
	}
	return true, nil
}

func (s *stubAuctionRepo) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.tenant, nil
}

type stubBidLedger struct {
	high    *models.Bid
	count   int64
	bidders []uuid.UUID
}

func (s *stubBidLedger) HighBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	return s.high, nil
}

func (s *stubBidLedger) CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	return s.count, nil
}

func (s *stubBidLedger) DistinctBidders(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error) {
	return s.bidders, nil
}

type stubBarracksRepo struct {
	item       *models.BarracksItem
	created    *models.BarracksItem
	markedPaid bool
	deleted    bool
	chargeRef  string
}

func (s *stubBarracksRepo) WithTx(tx *gorm.DB) barracks.Repository { return s }

func (s *stubBarracksRepo) Create(ctx context.Context, item *models.BarracksItem) error {
	s.created = item
	s.item = item
	return nil
}

func (s *stubBarracksRepo) FindByID(ctx context.Context, itemID uuid.UUID) (*models.BarracksItem, error) {
	if s.item == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.item, nil
}

func (s *stubBarracksRepo) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.BarracksItem, error) {
	if s.item == nil || s.item.AuctionID != auctionID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.item, nil
}

func (s *stubBarracksRepo) ListByUser(ctx context.Context, params barracks.ListItemsParams) ([]models.BarracksItem, *pagination.Cursor, error) {
	panic("not implemented")
}

func (s *stubBarracksRepo) FindPendingWithChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	return nil, nil
}

func (s *stubBarracksRepo) FindPendingMissingChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	return nil, nil
}

func (s *stubBarracksRepo) SetChargeRefs(ctx context.Context, itemID uuid.UUID, planRef, chargeRef string) error {
	s.chargeRef = chargeRef
	if s.item != nil {
		s.item.PlanRef = &planRef
		s.item.ChargeRef = &chargeRef
	}
	return nil
}

func (s *stubBarracksRepo) MarkPaid(ctx context.Context, itemID uuid.UUID, chargeRef string, paidAt time.Time) (bool, error) {
	s.markedPaid = true
	return true, nil
}

func (s *stubBarracksRepo) UpdateStatus(ctx context.Context, itemID uuid.UUID, from, to enums.BarracksStatus) (bool, error) {
	if s.item != nil && s.item.Status == from {
		s.item.Status = to
		return true, nil
	}
	return false, nil
}

func (s *stubBarracksRepo) DeleteByAuctionID(ctx context.Context, auctionID uuid.UUID) error {
	s.deleted = true
	s.item = nil
	return nil
}

type stubFulfillmentRepo struct {
	record    *models.FulfillmentRecord
	delivered bool
	shippable bool
}

func (s *stubFulfillmentRepo) WithTx(tx *gorm.DB) fulfillment.Repository { return s }

func (s *stubFulfillmentRepo) Create(ctx context.Context, record *models.FulfillmentRecord) error {
	s.record = record
	return nil
}

func (s *stubFulfillmentRepo) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error) {
	if s.record == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.record, nil
}

func (s *stubFulfillmentRepo) MarkShipped(ctx context.Context, auctionID uuid.UUID, trackingRef *string, now time.Time) (bool, error) {
	panic("not implemented")
}

func (s *stubFulfillmentRepo) MarkDelivered(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	if !s.shippable {
		return false, nil
	}
	s.delivered = true
	return true, nil
}

func (s *stubFulfillmentRepo) MarkDisputed(ctx context.Context, auctionID uuid.UUID, reason string) (bool, error) {
	panic("not implemented")
}

type stubPayoutService struct {
	params *payouts.DisburseParams
	result *payouts.DisburseResult
}

func (s *stubPayoutService) Disburse(ctx context.Context, params payouts.DisburseParams) (*payouts.DisburseResult, error) {
	s.params = &params
	if s.result != nil {
		return s.result, nil
	}
	return &payouts.DisburseResult{Success: true, Issued: 2}, nil
}

func (s *stubPayoutService) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error) {
	return nil, nil
}

type stubCharger struct {
	req    *payments.ChargeRequest
	result *payments.ChargeResult
	err    error
	calls  int
}

func (s *stubCharger) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	s.req = &req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &payments.ChargeResult{Status: enums.ChargeStatusPending, ChargeRef: "charge-1", PlanRef: req.PlanRef}, nil
}

type stubOutboxEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutboxEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxEmitter) eventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.EventType)
	}
	return types
}

func (s *stubOutboxEmitter) has(eventType enums.OutboxEventType) bool {
	for _, event := range s.events {
		if event.EventType == eventType {
			return true
		}
	}
	return false
}

type serviceFixture struct {
	svc      Service
	repo     *stubAuctionRepo
	bids     *stubBidLedger
	barracks *stubBarracksRepo
	shipping *stubFulfillmentRepo
	payouts  *stubPayoutService
	charger  *stubCharger
	outbox   *stubOutboxEmitter
}

func newServiceFixture(t *testing.T, repo *stubAuctionRepo) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		repo:     repo,
		bids:     &stubBidLedger{},
		barracks: &stubBarracksRepo{},
		shipping: &stubFulfillmentRepo{},
		payouts:  &stubPayoutService{},
		charger:  &stubCharger{},
		outbox:   &stubOutboxEmitter{},
	}
	svc, err := NewService(ServiceParams{
		DB:          stubTxRunner{},
		Repo:        repo,
		Bids:        fixture.bids,
		Barracks:    fixture.barracks,
		Fulfillment: fixture.shipping,
		Payouts:     fixture.payouts,
		Charger:     fixture.charger,
		Outbox:      fixture.outbox,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func liveAuction(endAt time.Time) *models.Auction {
	return &models.Auction{
		ID:                  uuid.New(),
		TenantID:            uuid.New(),
		SellerID:            uuid.New(),
		Title:               "Signed first edition",
		ItemKind:            enums.ItemKindPhysical,
		Status:              enums.AuctionStatusLive,
		StartPriceCents:     1000,
		MinIncrementCents:   100,
		ShippingCostCents:   500,
		PlatformFeePercent:  decimal.NewFromInt(3),
		CommunityFeePercent: decimal.NewFromInt(5),
		Currency:            enums.CurrencyUSD,
		StartAt:             endAt.Add(-24 * time.Hour),
		EndAt:               endAt,
	}
}

func TestFinalizeNoBids(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Minute))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if outcome != FinalizeOutcomeEnded {
		t.Fatalf("expected ended outcome got %s", outcome)
	}
	if auction.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected ended status got %s", auction.Status)
	}
	if auction.WinnerID != nil {
		t.Fatal("no winner should be recorded")
	}
	if !fixture.outbox.has(enums.EventAuctionEnded) {
		t.Fatalf("expected auction_ended event, got %v", fixture.outbox.eventTypes())
	}
	if fixture.charger.req != nil {
		t.Fatal("no charge should be created without a winner")
	}
}

func TestFinalizeWithWinner(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Minute))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	winner := uuid.New()
	fixture.bids.high = &models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderID: winner, AmountCents: 2500}
	fixture.bids.bidders = []uuid.UUID{winner, uuid.New()}

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if outcome != FinalizeOutcomeWon {
		t.Fatalf("expected winner outcome got %s", outcome)
	}
	if auction.Status != enums.AuctionStatusPendingPayment {
		t.Fatalf("expected pending_payment got %s", auction.Status)
	}
	if auction.WinnerID == nil || *auction.WinnerID != winner {
		t.Fatal("winner should be recorded on the auction")
	}
	if fixture.barracks.created == nil {
		t.Fatal("expected barracks entry")
	}
	if got := fixture.barracks.created.AmountCents; got != 3000 {
		t.Fatalf("expected total 3000 (bid + shipping) got %d", got)
	}
	if !fixture.outbox.has(enums.EventAuctionWon) {
		t.Fatalf("expected auction_won event, got %v", fixture.outbox.eventTypes())
	}
	if fixture.charger.req == nil {
		t.Fatal("expected a charge request")
	}
	meta := fixture.charger.req.Metadata
	if meta.TotalCents != 3000 || meta.BuyerID != winner {
		t.Fatalf("unexpected charge metadata %+v", meta)
	}
	if meta.PlatformFeeCents+meta.CommunityFeeCents+meta.SellerCents != meta.TotalCents {
		t.Fatal("breakdown must sum to the total")
	}
	if auction.ChargeRef == nil || *auction.ChargeRef != "charge-1" {
		t.Fatal("charge ref should be stored after creation")
	}
	if fixture.barracks.chargeRef != "charge-1" {
		t.Fatal("charge ref should be stored on the barracks entry")
	}
}

func TestFinalizeTwiceChargesOnce(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Minute))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	winner := uuid.New()
	fixture.bids.high = &models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderID: winner, AmountCents: 2500}

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if outcome != FinalizeOutcomeWon {
		t.Fatalf("expected winner outcome got %s", outcome)
	}

	outcome, err = fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if outcome != FinalizeOutcomeSkipped {
		t.Fatalf("repeated finalize must skip, got %s", outcome)
	}
	if fixture.charger.calls != 1 {
		t.Fatalf("expected exactly one charge, got %d", fixture.charger.calls)
	}
	if auction.Status != enums.AuctionStatusPendingPayment {
		t.Fatalf("auction must stay in pending_payment, got %s", auction.Status)
	}
}

func TestFinalizeReawardsResetAuction(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	auction.Status = enums.AuctionStatusEnded
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	nextWinner := uuid.New()
	fixture.bids.high = &models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderID: nextWinner, AmountCents: 2200}

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if outcome != FinalizeOutcomeWon {
		t.Fatalf("expected winner outcome got %s", outcome)
	}
	if auction.Status != enums.AuctionStatusPendingPayment {
		t.Fatalf("expected pending_payment got %s", auction.Status)
	}
	if auction.WinnerID == nil || *auction.WinnerID != nextWinner {
		t.Fatal("ledger high bid should be recorded as the new winner")
	}
	if auction.PlanRef == nil || *auction.PlanRef == "" {
		t.Fatal("a fresh plan ref should be minted for the new cycle")
	}
	if fixture.charger.req == nil {
		t.Fatal("expected a charge request for the re-award")
	}
}

func TestFinalizeSkipsEndedWithoutBids(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	auction.Status = enums.AuctionStatusEnded
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if outcome != FinalizeOutcomeSkipped {
		t.Fatalf("expected skip got %s", outcome)
	}
	if auction.Status != enums.AuctionStatusEnded {
		t.Fatalf("auction should be untouched, got %s", auction.Status)
	}
	if fixture.charger.req != nil {
		t.Fatal("no charge should be created without bids")
	}
}

func TestFinalizeStillLive(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	outcome, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if outcome != FinalizeOutcomeSkipped {
		t.Fatalf("expected skip got %s", outcome)
	}
	if auction.Status != enums.AuctionStatusLive {
		t.Fatalf("auction should be untouched, got %s", auction.Status)
	}
}

func TestFinalizeChargeRejected(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Minute))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.bids.high = &models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderID: uuid.New(), AmountCents: 2000}
	fixture.charger.result = &payments.ChargeResult{Status: enums.ChargeStatusFailed}

	_, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependencyHard) {
		t.Fatalf("expected hard dependency error got %v", err)
	}
	if auction.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected reset to ended got %s", auction.Status)
	}
	if auction.WinnerID != nil || auction.PlanRef != nil {
		t.Fatal("winner and references should be cleared on reset")
	}
	if !fixture.barracks.deleted {
		t.Fatal("barracks entry should be removed on reset")
	}
	if !fixture.outbox.has(enums.EventAuctionReset) {
		t.Fatalf("expected auction_reset event, got %v", fixture.outbox.eventTypes())
	}
}

func TestFinalizeChargeUnreachable(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Minute))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.bids.high = &models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderID: uuid.New(), AmountCents: 2000}
	fixture.charger.err = pkgerrors.New(pkgerrors.CodeDependency, "collaborator timeout")

	_, err := fixture.svc.Finalize(context.Background(), auction.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error got %v", err)
	}
	// Transient failure: the winner stays and the scheduler retries the charge.
	if auction.Status != enums.AuctionStatusPendingPayment {
		t.Fatalf("expected pending_payment got %s", auction.Status)
	}
	if fixture.barracks.deleted {
		t.Fatal("barracks entry must survive a transient charge failure")
	}
}

func TestBuyNow(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	buyNow := int64(5000)
	auction.BuyNowPriceCents = &buyNow
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	buyer := uuid.New()

	got, err := fixture.svc.BuyNow(context.Background(), BuyNowParams{
		TenantID:    auction.TenantID,
		AuctionID:   auction.ID,
		BuyerID:     buyer,
		AmountCents: buyNow,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if got.Status != enums.AuctionStatusPendingPayment {
		t.Fatalf("expected pending_payment got %s", got.Status)
	}
	if got.WinnerID == nil || *got.WinnerID != buyer {
		t.Fatal("buyer should be recorded as winner")
	}
	if got.WinningBidID != nil {
		t.Fatal("buy-now must not reference a ledger bid")
	}
	if fixture.barracks.created == nil || fixture.barracks.created.AmountCents != 5500 {
		t.Fatalf("expected barracks total 5500 got %+v", fixture.barracks.created)
	}
	if !fixture.outbox.has(enums.EventBuyNowPurchased) {
		t.Fatalf("expected buy_now_purchased event, got %v", fixture.outbox.eventTypes())
	}
}

func TestBuyNowWrongAmount(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	buyNow := int64(5000)
	auction.BuyNowPriceCents = &buyNow
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	_, err := fixture.svc.BuyNow(context.Background(), BuyNowParams{
		TenantID:    auction.TenantID,
		AuctionID:   auction.ID,
		BuyerID:     uuid.New(),
		AmountCents: 4999,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
	if auction.Status != enums.AuctionStatusLive {
		t.Fatal("a rejected purchase must not move the auction")
	}
}

func TestBuyNowBySeller(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	buyNow := int64(5000)
	auction.BuyNowPriceCents = &buyNow
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	_, err := fixture.svc.BuyNow(context.Background(), BuyNowParams{
		TenantID:    auction.TenantID,
		AuctionID:   auction.ID,
		BuyerID:     auction.SellerID,
		AmountCents: buyNow,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeSelfBid) {
		t.Fatalf("expected self-bid error got %v", err)
	}
}

func TestConfirmSettledPhysical(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	planRef := "bh-plan"
	auction.Status = enums.AuctionStatusPendingPayment
	auction.WinnerID = &winner
	auction.PlanRef = &planRef
	repo := &stubAuctionRepo{
		auction: auction,
		tenant:  &models.Tenant{ID: auction.TenantID, Name: "vintage", CommunityOwnerID: uuid.New()},
	}
	fixture := newServiceFixture(t, repo)
	fixture.barracks.item = &models.BarracksItem{
		ID:          uuid.New(),
		UserID:      winner,
		AuctionID:   auction.ID,
		PlanRef:     &planRef,
		AmountCents: 3000,
		Status:      enums.BarracksStatusPendingPayment,
	}

	err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
		AuctionID:   auction.ID,
		BuyerID:     winner,
		PlanRef:     planRef,
		ChargeRef:   "charge-1",
		AmountCents: 3000,
		PaidAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if auction.Status != enums.AuctionStatusPaid {
		t.Fatalf("expected paid got %s", auction.Status)
	}
	if !fixture.barracks.markedPaid {
		t.Fatal("barracks entry should be marked paid")
	}
	if fixture.shipping.record == nil {
		t.Fatal("physical item needs a fulfillment record")
	}
	if fixture.shipping.record.BuyerID != winner {
		t.Fatal("fulfillment record should carry the buyer")
	}
	if !fixture.outbox.has(enums.EventPaymentSettled) {
		t.Fatalf("expected payment_settled event, got %v", fixture.outbox.eventTypes())
	}
	if fixture.payouts.params == nil {
		t.Fatal("disbursement should start after settlement")
	}
	breakdown := fixture.payouts.params.Breakdown
	if breakdown.TotalCents != 3000 {
		t.Fatalf("expected breakdown over 3000 got %d", breakdown.TotalCents)
	}
	if breakdown.PlatformFeeCents != 90 || breakdown.CommunityFeeCents != 150 || breakdown.SellerCents != 2760 {
		t.Fatalf("unexpected breakdown %+v", breakdown)
	}
}

func TestConfirmSettledDigital(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	auction.ItemKind = enums.ItemKindDigital
	auction.ShippingCostCents = 0
	auction.Status = enums.AuctionStatusPendingPayment
	auction.WinnerID = &winner
	planRef := "bh-plan"
	auction.PlanRef = &planRef
	repo := &stubAuctionRepo{
		auction: auction,
		tenant:  &models.Tenant{ID: auction.TenantID, Name: "vintage", CommunityOwnerID: uuid.New()},
	}
	fixture := newServiceFixture(t, repo)
	fixture.barracks.item = &models.BarracksItem{
		ID:          uuid.New(),
		UserID:      winner,
		AuctionID:   auction.ID,
		AmountCents: 2500,
		Status:      enums.BarracksStatusPendingPayment,
	}

	err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
		AuctionID:   auction.ID,
		BuyerID:     winner,
		PlanRef:     planRef,
		ChargeRef:   "charge-1",
		AmountCents: 2500,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if auction.Status != enums.AuctionStatusFulfilled {
		t.Fatalf("digital auctions settle straight to fulfilled, got %s", auction.Status)
	}
	if fixture.shipping.record != nil {
		t.Fatal("digital items never get fulfillment records")
	}
}

func TestConfirmSettledWrongState(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	auction.Status = enums.AuctionStatusEnded
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
		AuctionID:   auction.ID,
		BuyerID:     uuid.New(),
		PlanRef:     "bh-plan",
		ChargeRef:   "charge-1",
		AmountCents: 3000,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict got %v", err)
	}
}

func TestConfirmSettledRejectsMismatchedPayment(t *testing.T) {
	newFixture := func(t *testing.T) (*models.Auction, uuid.UUID, string, *serviceFixture) {
		auction := liveAuction(time.Now().Add(-time.Hour))
		winner := uuid.New()
		planRef := "bh-plan"
		auction.Status = enums.AuctionStatusPendingPayment
		auction.WinnerID = &winner
		auction.PlanRef = &planRef
		repo := &stubAuctionRepo{
			auction: auction,
			tenant:  &models.Tenant{ID: auction.TenantID, Name: "vintage", CommunityOwnerID: uuid.New()},
		}
		fixture := newServiceFixture(t, repo)
		fixture.barracks.item = &models.BarracksItem{
			ID:          uuid.New(),
			UserID:      winner,
			AuctionID:   auction.ID,
			PlanRef:     &planRef,
			AmountCents: 3000,
			Status:      enums.BarracksStatusPendingPayment,
		}
		return auction, winner, planRef, fixture
	}

	t.Run("wrong buyer", func(t *testing.T) {
		auction, _, planRef, fixture := newFixture(t)
		err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
			AuctionID:   auction.ID,
			BuyerID:     uuid.New(),
			PlanRef:     planRef,
			ChargeRef:   "charge-1",
			AmountCents: 3000,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("expected state conflict got %v", err)
		}
		if auction.Status != enums.AuctionStatusPendingPayment {
			t.Fatal("a rejected settlement must not move the auction")
		}
	})

	t.Run("wrong plan ref", func(t *testing.T) {
		auction, winner, _, fixture := newFixture(t)
		err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
			AuctionID:   auction.ID,
			BuyerID:     winner,
			PlanRef:     "bh-stale-plan",
			ChargeRef:   "charge-1",
			AmountCents: 3000,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("expected state conflict got %v", err)
		}
		if auction.Status != enums.AuctionStatusPendingPayment {
			t.Fatal("a rejected settlement must not move the auction")
		}
	})

	t.Run("wrong amount", func(t *testing.T) {
		auction, winner, planRef, fixture := newFixture(t)
		err := fixture.svc.ConfirmSettled(context.Background(), SettleParams{
			AuctionID:   auction.ID,
			BuyerID:     winner,
			PlanRef:     planRef,
			ChargeRef:   "charge-1",
			AmountCents: 2999,
		})
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("expected state conflict got %v", err)
		}
		if fixture.barracks.markedPaid {
			t.Fatal("a rejected settlement must not mark the entry paid")
		}
	})
}

func TestResetOnFailure(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	chargeRef := "charge-1"
	auction.Status = enums.AuctionStatusPendingPayment
	auction.WinnerID = &winner
	auction.ChargeRef = &chargeRef
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.barracks.item = &models.BarracksItem{ID: uuid.New(), UserID: winner, AuctionID: auction.ID}

	err := fixture.svc.ResetOnFailure(context.Background(), ResetParams{
		AuctionID: auction.ID,
		Observed:  enums.ChargeStatusCanceled,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if auction.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected ended got %s", auction.Status)
	}
	if auction.WinnerID != nil || auction.ChargeRef != nil {
		t.Fatal("winner and charge references should be cleared")
	}
	if !fixture.barracks.deleted {
		t.Fatal("barracks entry should be removed")
	}
	if !fixture.outbox.has(enums.EventPaymentFailed) || !fixture.outbox.has(enums.EventAuctionReset) {
		t.Fatalf("expected failure and reset events, got %v", fixture.outbox.eventTypes())
	}
}

func TestConfirmReceipt(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	auction.Status = enums.AuctionStatusPaid
	auction.WinnerID = &winner
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.shipping.shippable = true
	fixture.barracks.item = &models.BarracksItem{
		ID:        uuid.New(),
		UserID:    winner,
		AuctionID: auction.ID,
		Status:    enums.BarracksStatusPaid,
	}

	err := fixture.svc.ConfirmReceipt(context.Background(), ReceiptParams{
		TenantID:  auction.TenantID,
		AuctionID: auction.ID,
		BuyerID:   winner,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if auction.Status != enums.AuctionStatusFulfilled {
		t.Fatalf("expected fulfilled got %s", auction.Status)
	}
	if !fixture.shipping.delivered {
		t.Fatal("fulfillment record should flip to delivered")
	}
	if fixture.barracks.item.Status != enums.BarracksStatusDelivered {
		t.Fatalf("barracks entry should be delivered, got %s", fixture.barracks.item.Status)
	}
	if !fixture.outbox.has(enums.EventItemDelivered) {
		t.Fatalf("expected item_delivered event, got %v", fixture.outbox.eventTypes())
	}
}

func TestConfirmReceiptBeforeShipment(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	auction.Status = enums.AuctionStatusPaid
	auction.WinnerID = &winner
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	err := fixture.svc.ConfirmReceipt(context.Background(), ReceiptParams{
		TenantID:  auction.TenantID,
		AuctionID: auction.ID,
		BuyerID:   winner,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict got %v", err)
	}
	if auction.Status != enums.AuctionStatusPaid {
		t.Fatal("auction must stay paid until the item ships")
	}
}

func TestConfirmReceiptByNonWinner(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	auction.Status = enums.AuctionStatusPaid
	auction.WinnerID = &winner
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	err := fixture.svc.ConfirmReceipt(context.Background(), ReceiptParams{
		TenantID:  auction.TenantID,
		AuctionID: auction.ID,
		BuyerID:   uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
}

func TestActivateDue(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	auction.Status = enums.AuctionStatusScheduled
	auction.StartAt = time.Now().Add(-time.Minute)
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})

	activated, err := fixture.svc.ActivateDue(context.Background(), 50)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if activated != 1 {
		t.Fatalf("expected one activation got %d", activated)
	}
	if auction.Status != enums.AuctionStatusLive {
		t.Fatalf("expected live got %s", auction.Status)
	}
	if !fixture.outbox.has(enums.EventAuctionWentLive) {
		t.Fatalf("expected auction_went_live event, got %v", fixture.outbox.eventTypes())
	}
}

func TestActivateDueEmitFailureNotCounted(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	auction.Status = enums.AuctionStatusScheduled
	auction.StartAt = time.Now().Add(-time.Minute)
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.outbox.err = errors.New("outbox insert failed")

	activated, err := fixture.svc.ActivateDue(context.Background(), 50)
	if err == nil {
		t.Fatal("expected emit failure to surface")
	}
	// The transaction rolled back, so the reported count must not include
	// the failed auction.
	if activated != 0 {
		t.Fatalf("expected zero activations got %d", activated)
	}
}

func TestRetryCharge(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	planRef := "bh-plan"
	auction.Status = enums.AuctionStatusPendingPayment
	auction.WinnerID = &winner
	auction.PlanRef = &planRef
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.barracks.item = &models.BarracksItem{
		ID:          uuid.New(),
		UserID:      winner,
		AuctionID:   auction.ID,
		PlanRef:     &planRef,
		AmountCents: 3000,
		Status:      enums.BarracksStatusPendingPayment,
	}

	if err := fixture.svc.RetryCharge(context.Background(), auction.ID); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if fixture.charger.req == nil {
		t.Fatal("expected a charge request")
	}
	if fixture.charger.req.PlanRef != planRef {
		t.Fatalf("retry must reuse the minted plan ref, got %s", fixture.charger.req.PlanRef)
	}
	if fixture.barracks.chargeRef != "charge-1" {
		t.Fatal("charge ref should be stored on the barracks entry")
	}
}

func TestRetryChargeAlreadyCreated(t *testing.T) {
	auction := liveAuction(time.Now().Add(-time.Hour))
	winner := uuid.New()
	planRef := "bh-plan"
	chargeRef := "charge-0"
	auction.Status = enums.AuctionStatusPendingPayment
	auction.WinnerID = &winner
	auction.PlanRef = &planRef
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.barracks.item = &models.BarracksItem{
		ID:        uuid.New(),
		UserID:    winner,
		AuctionID: auction.ID,
		PlanRef:   &planRef,
		ChargeRef: &chargeRef,
	}

	if err := fixture.svc.RetryCharge(context.Background(), auction.ID); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if fixture.charger.req != nil {
		t.Fatal("no second charge may be created for the same win")
	}
}

func TestCreateValidation(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Name: "vintage", CommunityOwnerID: uuid.New()}
	fixture := newServiceFixture(t, &stubAuctionRepo{tenant: tenant})
	start := time.Now().Add(time.Hour)
	buyNow := int64(500)

	valid := CreateParams{
		TenantID:            tenant.ID,
		SellerID:            uuid.New(),
		Title:               "Signed first edition",
		ItemKind:            enums.ItemKindPhysical,
		StartPriceCents:     1000,
		MinIncrementCents:   100,
		ShippingCostCents:   500,
		PlatformFeePercent:  decimal.NewFromInt(3),
		CommunityFeePercent: decimal.NewFromInt(5),
		StartAt:             start,
		EndAt:               start.Add(24 * time.Hour),
	}

	cases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"blank title", func(p *CreateParams) { p.Title = "   " }},
		{"zero start price", func(p *CreateParams) { p.StartPriceCents = 0 }},
		{"zero increment", func(p *CreateParams) { p.MinIncrementCents = 0 }},
		{"buy-now below start", func(p *CreateParams) { p.BuyNowPriceCents = &buyNow }},
		{"negative shipping", func(p *CreateParams) { p.ShippingCostCents = -1 }},
		{"shipping on digital", func(p *CreateParams) { p.ItemKind = enums.ItemKindDigital }},
		{"fees above hundred", func(p *CreateParams) { p.PlatformFeePercent = decimal.NewFromInt(70); p.CommunityFeePercent = decimal.NewFromInt(40) }},
		{"end before start", func(p *CreateParams) { p.EndAt = start.Add(-time.Hour) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)
			if _, err := fixture.svc.Create(context.Background(), params); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error got %v", err)
			}
		})
	}

	created, err := fixture.svc.Create(context.Background(), valid)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if created.Status != enums.AuctionStatusScheduled {
		t.Fatalf("new auctions start scheduled, got %s", created.Status)
	}
}

func TestCreateUnknownTenant(t *testing.T) {
	fixture := newServiceFixture(t, &stubAuctionRepo{})
	start := time.Now().Add(time.Hour)

	_, err := fixture.svc.Create(context.Background(), CreateParams{
		TenantID:            uuid.New(),
		SellerID:            uuid.New(),
		Title:               "Signed first edition",
		ItemKind:            enums.ItemKindPhysical,
		StartPriceCents:     1000,
		MinIncrementCents:   100,
		PlatformFeePercent:  decimal.NewFromInt(3),
		CommunityFeePercent: decimal.NewFromInt(5),
		StartAt:             start,
		EndAt:               start.Add(time.Hour),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestUpdateTermsFrozenAfterFirstBid(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	fixture.bids.count = 1
	newPrice := int64(2000)

	_, err := fixture.svc.UpdateTerms(context.Background(), UpdateParams{
		TenantID:        auction.TenantID,
		AuctionID:       auction.ID,
		SellerID:        auction.SellerID,
		StartPriceCents: &newPrice,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestUpdateTermsBySeller(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	title := "Signed second edition"

	updated, err := fixture.svc.UpdateTerms(context.Background(), UpdateParams{
		TenantID:  auction.TenantID,
		AuctionID: auction.ID,
		SellerID:  auction.SellerID,
		Title:     &title,
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated auction")
	}
	if fixture.repo.termUpdates["title"] != title {
		t.Fatalf("expected title update, got %v", fixture.repo.termUpdates)
	}
}

func TestUpdateTermsByStranger(t *testing.T) {
	auction := liveAuction(time.Now().Add(time.Hour))
	fixture := newServiceFixture(t, &stubAuctionRepo{auction: auction})
	title := "hijacked"

	_, err := fixture.svc.UpdateTerms(context.Background(), UpdateParams{
		TenantID:  auction.TenantID,
		AuctionID: auction.ID,
		SellerID:  uuid.New(),
		Title:     &title,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
}
