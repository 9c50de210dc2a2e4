package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/barracks"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

type testBarracksService struct {
	listFn func(ctx context.Context, params barracks.ListParams) (*barracks.ListResult, error)
	getFn  func(ctx context.Context, userID, itemID uuid.UUID) (*models.BarracksItem, error)
}

func (s *testBarracksService) List(ctx context.Context, params barracks.ListParams) (*barracks.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &barracks.ListResult{}, nil
}

func (s *testBarracksService) Get(ctx context.Context, userID, itemID uuid.UUID) (*models.BarracksItem, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, itemID)
	}
	return &models.BarracksItem{}, nil
}

func TestListBarracksRejectsUnknownStatus(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/barracks?status=melted", nil, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	ListBarracks(&testBarracksService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListBarracksScopesToCaller(t *testing.T) {
	userID := uuid.New()
	svc := &testBarracksService{
		listFn: func(ctx context.Context, params barracks.ListParams) (*barracks.ListResult, error) {
			if params.UserID != userID {
				t.Fatalf("unexpected user %s", params.UserID)
			}
			if params.Status != "pending_payment" {
				t.Fatalf("unexpected status %q", params.Status)
			}
			return &barracks.ListResult{}, nil
		},
	}
	req := authedRequest(http.MethodGet, "/api/v1/barracks?status=pending_payment", nil, userID, uuid.New())
	resp := httptest.NewRecorder()
	ListBarracks(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestConfirmReceiptChecksOwnership(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	itemID := uuid.New()
	auctionID := uuid.New()

	items := &testBarracksService{
		getFn: func(ctx context.Context, uid, iid uuid.UUID) (*models.BarracksItem, error) {
			if uid != userID || iid != itemID {
				t.Fatalf("unexpected lookup %s/%s", uid, iid)
			}
			return &models.BarracksItem{ID: itemID, UserID: userID, AuctionID: auctionID}, nil
		},
	}
	var captured auctions.ReceiptParams
	svc := &testAuctionsService{
		receiptFn: func(ctx context.Context, params auctions.ReceiptParams) error {
			captured = params
			return nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/barracks/"+itemID.String()+"/confirm-receipt", nil, userID, tenantID)
	req = addRouteParam(req, "itemId", itemID.String())
	resp := httptest.NewRecorder()
	ConfirmReceipt(items, svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d (%s)", resp.Code, resp.Body.String())
	}
	if captured.AuctionID != auctionID || captured.BuyerID != userID || captured.TenantID != tenantID {
		t.Fatalf("params not mapped: %+v", captured)
	}
}

func TestConfirmReceiptForeignItem(t *testing.T) {
	items := &testBarracksService{
		getFn: func(ctx context.Context, uid, iid uuid.UUID) (*models.BarracksItem, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "barracks item not found")
		},
	}
	itemID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/barracks/"+itemID.String()+"/confirm-receipt", nil, uuid.New(), uuid.New())
	req = addRouteParam(req, "itemId", itemID.String())
	resp := httptest.NewRecorder()
	ConfirmReceipt(items, &testAuctionsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
