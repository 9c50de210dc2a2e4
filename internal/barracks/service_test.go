package barracks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type stubItemsRepo struct {
	items      []models.BarracksItem
	lastParams ListItemsParams
}

func (s *stubItemsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubItemsRepo) Create(ctx context.Context, item *models.BarracksItem) error {
	panic("not implemented")
}

func (s *stubItemsRepo) FindByID(ctx context.Context, itemID uuid.UUID) (*models.BarracksItem, error) {
	for i := range s.items {
		if s.items[i].ID == itemID {
			return &s.items[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubItemsRepo) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.BarracksItem, error) {
	panic("not implemented")
}

func (s *stubItemsRepo) ListByUser(ctx context.Context, params ListItemsParams) ([]models.BarracksItem, *pagination.Cursor, error) {
	s.lastParams = params
	var rows []models.BarracksItem
	for _, item := range s.items {
		if item.UserID != params.UserID {
			continue
		}
		if params.Status != nil && item.Status != *params.Status {
			continue
		}
		rows = append(rows, item)
	}
	return rows, nil, nil
}

func (s *stubItemsRepo) FindPendingWithChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	panic("not implemented")
}

func (s *stubItemsRepo) FindPendingMissingChargeRef(ctx context.Context, limit int) ([]models.BarracksItem, error) {
	panic("not implemented")
}

func (s *stubItemsRepo) SetChargeRefs(ctx context.Context, itemID uuid.UUID, planRef, chargeRef string) error {
	panic("not implemented")
}

func (s *stubItemsRepo) MarkPaid(ctx context.Context, itemID uuid.UUID, chargeRef string, paidAt time.Time) (bool, error) {
	panic("not implemented")
}

func (s *stubItemsRepo) UpdateStatus(ctx context.Context, itemID uuid.UUID, from, to enums.BarracksStatus) (bool, error) {
	panic("not implemented")
}

func (s *stubItemsRepo) DeleteByAuctionID(ctx context.Context, auctionID uuid.UUID) error {
	panic("not implemented")
}

func TestListScopedToUser(t *testing.T) {
	userID := uuid.New()
	repo := &stubItemsRepo{items: []models.BarracksItem{
		{ID: uuid.New(), UserID: userID, AuctionID: uuid.New(), Status: enums.BarracksStatusPaid},
		{ID: uuid.New(), UserID: userID, AuctionID: uuid.New(), Status: enums.BarracksStatusPendingPayment},
		{ID: uuid.New(), UserID: uuid.New(), AuctionID: uuid.New(), Status: enums.BarracksStatusPaid},
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	result, err := svc.List(context.Background(), ListParams{UserID: userID})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected two items got %d", len(result.Items))
	}

	filtered, err := svc.List(context.Background(), ListParams{UserID: userID, Status: "paid"})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(filtered.Items) != 1 {
		t.Fatalf("expected one paid item got %d", len(filtered.Items))
	}
	if repo.lastParams.Status == nil || *repo.lastParams.Status != enums.BarracksStatusPaid {
		t.Fatalf("status filter should be parsed, got %v", repo.lastParams.Status)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, _ := NewService(&stubItemsRepo{})

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Status: "gone"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestGetOwnership(t *testing.T) {
	userID := uuid.New()
	item := models.BarracksItem{ID: uuid.New(), UserID: userID, AuctionID: uuid.New(), Status: enums.BarracksStatusPaid}
	svc, _ := NewService(&stubItemsRepo{items: []models.BarracksItem{item}})

	found, err := svc.Get(context.Background(), userID, item.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if found.ID != item.ID {
		t.Fatalf("unexpected item %s", found.ID)
	}

	// Another user probing the same id learns nothing.
	_, err = svc.Get(context.Background(), uuid.New(), item.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}
