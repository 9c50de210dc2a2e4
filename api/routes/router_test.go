package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/barracks"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/internal/fulfillment"
	"github.com/bidhaus/bidhaus-backend/internal/notifications"
	squarewebhook "github.com/bidhaus/bidhaus-backend/internal/webhooks/square"
	pkgauth "github.com/bidhaus/bidhaus-backend/pkg/auth"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
	"github.com/bidhaus/bidhaus-backend/pkg/square"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAuctionsService struct {
	list func(ctx context.Context, params auctions.ListParams) (*auctions.ListResult, error)
}

func (s stubAuctionsService) Create(ctx context.Context, params auctions.CreateParams) (*models.Auction, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) Get(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Auction, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) List(ctx context.Context, params auctions.ListParams) (*auctions.ListResult, error) {
	if s.list != nil {
		return s.list(ctx, params)
	}
	return &auctions.ListResult{}, nil
}

func (s stubAuctionsService) UpdateTerms(ctx context.Context, params auctions.UpdateParams) (*models.Auction, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) BuyNow(ctx context.Context, params auctions.BuyNowParams) (*models.Auction, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) ActivateDue(ctx context.Context, limit int) (int, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) Finalize(ctx context.Context, auctionID uuid.UUID) (auctions.FinalizeOutcome, error) {
	panic("unimplemented")
}

func (s stubAuctionsService) RetryCharge(ctx context.Context, auctionID uuid.UUID) error {
	panic("unimplemented")
}

func (s stubAuctionsService) ConfirmSettled(ctx context.Context, params auctions.SettleParams) error {
	panic("unimplemented")
}

func (s stubAuctionsService) ResetOnFailure(ctx context.Context, params auctions.ResetParams) error {
	panic("unimplemented")
}

func (s stubAuctionsService) ConfirmReceipt(ctx context.Context, params auctions.ReceiptParams) error {
	panic("unimplemented")
}

type stubBidsService struct {
	highBid func(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Bid, error)
}

func (s stubBidsService) PlaceBid(ctx context.Context, params bids.PlaceBidParams) (*models.Bid, error) {
	panic("unimplemented")
}

func (s stubBidsService) HighBid(ctx context.Context, tenantID, auctionID uuid.UUID) (*models.Bid, error) {
	if s.highBid != nil {
		return s.highBid(ctx, tenantID, auctionID)
	}
	return &models.Bid{}, nil
}

func (s stubBidsService) List(ctx context.Context, params bids.ListParams) (*bids.ListResult, error) {
	return &bids.ListResult{}, nil
}

type stubBarracksService struct{}

func (stubBarracksService) List(ctx context.Context, params barracks.ListParams) (*barracks.ListResult, error) {
	return &barracks.ListResult{}, nil
}

func (stubBarracksService) Get(ctx context.Context, userID, itemID uuid.UUID) (*models.BarracksItem, error) {
	panic("unimplemented")
}

type stubFulfillmentService struct{}

func (stubFulfillmentService) Get(ctx context.Context, auctionID uuid.UUID) (*models.FulfillmentRecord, error) {
	return &models.FulfillmentRecord{}, nil
}

func (stubFulfillmentService) MarkShipped(ctx context.Context, params fulfillment.ShipParams) error {
	panic("unimplemented")
}

func (stubFulfillmentService) Dispute(ctx context.Context, params fulfillment.DisputeParams) error {
	panic("unimplemented")
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, auctionsService auctions.Service, bidsService bids.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},         // db.Pinger
		(*redis.Client)(nil), // *redis.Client
		auctionsService,
		bidsService,
		stubBarracksService{},
		stubFulfillmentService{},
		stubNotificationsService{},
		(*square.Client)(nil),
		(*squarewebhook.Service)(nil),
		(*squarewebhook.IdempotencyGuard)(nil),
	)
}

func buildToken(t *testing.T, cfg *config.Config, tenantID uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: &tenantID,
		Role:     enums.UserRoleMember,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestProtectedGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), stubAuctionsService{}, stubBidsService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestProtectedGroupRejectsTamperedJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubAuctionsService{}, stubBidsService{})

	other := testConfig()
	other.JWT.Secret = "other-secret"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, other, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature got %d", resp.Code)
	}
}

func TestProtectedGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	tenantID := uuid.New()
	svc := stubAuctionsService{
		list: func(ctx context.Context, params auctions.ListParams) (*auctions.ListResult, error) {
			if params.TenantID != tenantID {
				t.Fatalf("expected tenant %s from claims got %s", tenantID, params.TenantID)
			}
			return &auctions.ListResult{}, nil
		},
	}
	router := newTestRouter(cfg, svc, stubBidsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, tenantID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for authenticated list got %d", resp.Code)
	}
}

func TestHighBidRouteParsesAuctionID(t *testing.T) {
	cfg := testConfig()
	auctionID := uuid.New()
	svc := stubBidsService{
		highBid: func(ctx context.Context, tenantID, gotAuctionID uuid.UUID) (*models.Bid, error) {
			if gotAuctionID != auctionID {
				t.Fatalf("expected auction %s got %s", auctionID, gotAuctionID)
			}
			return &models.Bid{AuctionID: auctionID}, nil
		},
	}
	router := newTestRouter(cfg, stubAuctionsService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions/"+auctionID.String()+"/bids/high", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for high bid got %d", resp.Code)
	}
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig(), stubAuctionsService{}, stubBidsService{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Bidhaus-Env"); got != "test" {
		t.Fatalf("expected env header test got %q", got)
	}
}

func TestSquareWebhookIsPublicButSigned(t *testing.T) {
	router := newTestRouter(testConfig(), stubAuctionsService{}, stubBidsService{})

	body, err := json.Marshal(map[string]string{"event_id": uuid.NewString()})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code == http.StatusUnauthorized {
		t.Fatalf("webhook route must bypass bearer auth, got 401")
	}
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsigned webhook got %d", resp.Code)
	}
}
