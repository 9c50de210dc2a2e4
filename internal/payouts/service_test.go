package payouts

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/commission"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPayoutRepo struct {
	records  map[string]*models.PayoutTransfer
	accounts map[uuid.UUID]string
	failed   []string
}

func newStubPayoutRepo() *stubPayoutRepo {
	return &stubPayoutRepo{
		records:  map[string]*models.PayoutTransfer{},
		accounts: map[uuid.UUID]string{},
	}
}

func (s *stubPayoutRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPayoutRepo) Create(ctx context.Context, transfer *models.PayoutTransfer) error {
	s.records[transfer.IdempotencyKey] = transfer
	return nil
}

func (s *stubPayoutRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.PayoutTransfer, error) {
	return s.records[key], nil
}

func (s *stubPayoutRepo) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.PayoutTransfer, error) {
	var transfers []models.PayoutTransfer
	for _, record := range s.records {
		if record.AuctionID == auctionID {
			transfers = append(transfers, *record)
		}
	}
	return transfers, nil
}

func (s *stubPayoutRepo) MarkIssued(ctx context.Context, transferID uuid.UUID, transferRef string) error {
	for _, record := range s.records {
		if record.ID == transferID {
			record.Status = enums.PayoutStatusIssued
			record.TransferRef = &transferRef
			record.LastError = nil
		}
	}
	return nil
}

func (s *stubPayoutRepo) MarkFailed(ctx context.Context, transferID uuid.UUID, cause string) error {
	s.failed = append(s.failed, cause)
	for _, record := range s.records {
		if record.ID == transferID {
			record.Status = enums.PayoutStatusFailed
			record.LastError = &cause
		}
	}
	return nil
}

func (s *stubPayoutRepo) FindAccountRef(ctx context.Context, userID uuid.UUID) (string, error) {
	ref, ok := s.accounts[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return ref, nil
}

type transferCall struct {
	params stripe.TransferParams
}

type stubTransferClient struct {
	calls   []transferCall
	failFor map[string]error
}

func (s *stubTransferClient) CreateTransfer(ctx context.Context, params stripe.TransferParams) (*stripesdk.Transfer, error) {
	s.calls = append(s.calls, transferCall{params: params})
	if err, ok := s.failFor[params.Destination]; ok {
		return nil, err
	}
	return &stripesdk.Transfer{ID: "tr_" + params.Destination}, nil
}

type stubOutboxEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubOutboxEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newPayoutService(t *testing.T, repo *stubPayoutRepo, transfers *stubTransferClient, emitter *stubOutboxEmitter) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:        stubTxRunner{},
		Repo:      repo,
		Transfers: transfers,
		Outbox:    emitter,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func disburseFixture(repo *stubPayoutRepo) DisburseParams {
	sellerID := uuid.New()
	communityOwnerID := uuid.New()
	repo.accounts[sellerID] = "acct_seller"
	repo.accounts[communityOwnerID] = "acct_community"
	return DisburseParams{
		AuctionID: uuid.New(),
		ChargeRef: "charge-1",
		Currency:  enums.CurrencyUSD,
		Breakdown: commission.Breakdown{
			TotalCents:        3000,
			PlatformFeeCents:  90,
			CommunityFeeCents: 150,
			SellerCents:       2760,
		},
		SellerID:         sellerID,
		CommunityOwnerID: communityOwnerID,
	}
}

func TestDisburseBothLegs(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{}
	emitter := &stubOutboxEmitter{}
	svc := newPayoutService(t, repo, transfers, emitter)
	params := disburseFixture(repo)

	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !result.Success || result.Issued != 2 {
		t.Fatalf("expected two issued transfers, got %+v", result)
	}
	if len(transfers.calls) != 2 {
		t.Fatalf("expected two transfer calls got %d", len(transfers.calls))
	}
	community := transfers.calls[0].params
	if community.Destination != "acct_community" || community.AmountCents != 150 {
		t.Fatalf("unexpected community leg %+v", community)
	}
	seller := transfers.calls[1].params
	if seller.Destination != "acct_seller" || seller.AmountCents != 2760 {
		t.Fatalf("unexpected seller leg %+v", seller)
	}
	// The platform fee is the remainder; it never leaves the platform account.
	if community.AmountCents+seller.AmountCents != params.Breakdown.TotalCents-params.Breakdown.PlatformFeeCents {
		t.Fatal("transferred amounts must exclude the platform fee")
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected two payout_issued events got %d", len(emitter.events))
	}
	for _, event := range emitter.events {
		if event.EventType != enums.EventPayoutIssued {
			t.Fatalf("unexpected event type %s", event.EventType)
		}
	}
}

func TestDisburseIdempotent(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{}
	svc := newPayoutService(t, repo, transfers, &stubOutboxEmitter{})
	params := disburseFixture(repo)

	if _, err := svc.Disburse(context.Background(), params); err != nil {
		t.Fatalf("first disbursement failed: %v", err)
	}
	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("second disbursement failed: %v", err)
	}
	if result.Issued != 0 || result.Skipped != 2 {
		t.Fatalf("repeat disbursement must skip issued legs, got %+v", result)
	}
	if len(transfers.calls) != 2 {
		t.Fatalf("no extra transfer calls expected, got %d", len(transfers.calls))
	}
}

func TestDisburseNewChargeNewCycle(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{}
	svc := newPayoutService(t, repo, transfers, &stubOutboxEmitter{})
	params := disburseFixture(repo)

	if _, err := svc.Disburse(context.Background(), params); err != nil {
		t.Fatalf("first disbursement failed: %v", err)
	}
	// Same auction re-won under a fresh charge: both legs go out again.
	params.ChargeRef = "charge-2"
	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if result.Issued != 2 {
		t.Fatalf("new charge ref must issue fresh transfers, got %+v", result)
	}
}

func TestDisburseLegsFailIndependently(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{failFor: map[string]error{
		"acct_community": pkgerrors.New(pkgerrors.CodeDependency, "transfer rejected"),
	}}
	svc := newPayoutService(t, repo, transfers, &stubOutboxEmitter{})
	params := disburseFixture(repo)

	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("leg failures must not error the call: %v", err)
	}
	if result.Success {
		t.Fatal("a failed leg must flip Success")
	}
	if result.Issued != 1 || len(result.Errors) != 1 {
		t.Fatalf("seller leg should still issue, got %+v", result)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("failed leg should be recorded, got %v", repo.failed)
	}

	// Retry: the failed leg goes out, the issued one is skipped.
	transfers.failFor = nil
	retry, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !retry.Success || retry.Issued != 1 || retry.Skipped != 1 {
		t.Fatalf("unexpected retry outcome %+v", retry)
	}
}

func TestDisburseZeroCommunityFee(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{}
	svc := newPayoutService(t, repo, transfers, &stubOutboxEmitter{})
	params := disburseFixture(repo)
	params.Breakdown.CommunityFeeCents = 0
	params.Breakdown.SellerCents = 2910

	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.Issued != 1 || result.Skipped != 1 {
		t.Fatalf("zero-amount leg must be skipped, got %+v", result)
	}
	if len(transfers.calls) != 1 {
		t.Fatalf("expected one transfer call got %d", len(transfers.calls))
	}
}

func TestDisburseMissingAccount(t *testing.T) {
	repo := newStubPayoutRepo()
	transfers := &stubTransferClient{}
	svc := newPayoutService(t, repo, transfers, &stubOutboxEmitter{})
	params := disburseFixture(repo)
	delete(repo.accounts, params.SellerID)

	result, err := svc.Disburse(context.Background(), params)
	if err != nil {
		t.Fatalf("expected soft failure got %v", err)
	}
	if result.Success || len(result.Errors) != 1 {
		t.Fatalf("missing account should fail the seller leg, got %+v", result)
	}
	if !pkgerrors.HasCode(result.Errors[0], pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error got %v", result.Errors[0])
	}
}

func TestIdempotencyKey(t *testing.T) {
	auctionID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	key := IdempotencyKey(auctionID, enums.PayoutRoleSeller, "charge-1")
	expected := "payout:6ba7b810-9dad-11d1-80b4-00c04fd430c8:seller:charge-1"
	if key != expected {
		t.Fatalf("expected %s got %s", expected, key)
	}
}
