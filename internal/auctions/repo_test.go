package auctions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

func setupAuctionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	auctions := `
CREATE TABLE IF NOT EXISTS auctions (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  item_kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  start_price_cents INTEGER NOT NULL,
  min_increment_cents INTEGER NOT NULL,
  buy_now_price_cents INTEGER,
  shipping_cost_cents INTEGER NOT NULL DEFAULT 0,
  platform_fee_percent TEXT NOT NULL,
  community_fee_percent TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  start_at DATETIME NOT NULL,
  end_at DATETIME NOT NULL,
  winner_id TEXT,
  winning_bid_id TEXT,
  charge_ref TEXT,
  plan_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	tenants := `
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  community_owner_id TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	bids := `
CREATE TABLE IF NOT EXISTS bids (
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL,
  bidder_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(auctions).Error)
	require.NoError(t, db.Exec(tenants).Error)
	require.NoError(t, db.Exec(bids).Error)
	return db
}

func insertTestAuction(t *testing.T, db *gorm.DB, mutate func(*models.Auction)) *models.Auction {
	t.Helper()

	now := time.Now().UTC()
	auction := &models.Auction{
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
		StartAt:             now.Add(-time.Hour),
		EndAt:               now.Add(time.Hour),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if mutate != nil {
		mutate(auction)
	}
	require.NoError(t, db.Create(auction).Error)
	return auction
}

func TestRepositoryTransition(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	auction := insertTestAuction(t, db, nil)

	applied, err := repo.Transition(ctx, auction.ID, enums.AuctionStatusLive, enums.AuctionStatusEnded, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second attempt loses the race: the row already moved on.
	applied, err = repo.Transition(ctx, auction.ID, enums.AuctionStatusLive, enums.AuctionStatusEnded, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	var reloaded models.Auction
	require.NoError(t, db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.Equal(t, enums.AuctionStatusEnded, reloaded.Status)
}

func TestRepositoryTransitionWinnerRoundTrip(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	auction := insertTestAuction(t, db, nil)
	winner := uuid.New()
	bidID := uuid.New()

	applied, err := beginPendingPayment(ctx, repo, auction.ID, winner, &bidID, "bh-plan")
	require.NoError(t, err)
	require.True(t, applied)

	var reloaded models.Auction
	require.NoError(t, db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.Equal(t, enums.AuctionStatusPendingPayment, reloaded.Status)
	require.NotNil(t, reloaded.WinnerID)
	assert.Equal(t, winner, *reloaded.WinnerID)
	require.NotNil(t, reloaded.WinningBidID)
	assert.Equal(t, bidID, *reloaded.WinningBidID)
	require.NotNil(t, reloaded.PlanRef)
	assert.Equal(t, "bh-plan", *reloaded.PlanRef)

	applied, err = resetToEnded(ctx, repo, auction.ID)
	require.NoError(t, err)
	require.True(t, applied)

	var afterReset models.Auction
	require.NoError(t, db.First(&afterReset, "id = ?", auction.ID).Error)
	assert.Equal(t, enums.AuctionStatusEnded, afterReset.Status)
	assert.Nil(t, afterReset.WinnerID)
	assert.Nil(t, afterReset.WinningBidID)
	assert.Nil(t, afterReset.PlanRef)
	assert.Nil(t, afterReset.ChargeRef)
}

func TestRepositorySetChargeRefsConditional(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	auction := insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusPendingPayment
	})

	require.NoError(t, repo.SetChargeRefs(ctx, auction.ID, "bh-plan", "charge-1"))

	var reloaded models.Auction
	require.NoError(t, db.First(&reloaded, "id = ?", auction.ID).Error)
	require.NotNil(t, reloaded.ChargeRef)
	assert.Equal(t, "charge-1", *reloaded.ChargeRef)

	// A late charge response must not touch a row that already reset.
	reset := insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusEnded
	})
	require.NoError(t, repo.SetChargeRefs(ctx, reset.ID, "bh-late", "charge-late"))
	var untouched models.Auction
	require.NoError(t, db.First(&untouched, "id = ?", reset.ID).Error)
	assert.Nil(t, untouched.ChargeRef)
}

func TestRepositoryFindExpiredLive(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := insertTestAuction(t, db, func(a *models.Auction) {
		a.EndAt = now.Add(-time.Minute)
	})
	insertTestAuction(t, db, func(a *models.Auction) {
		a.EndAt = now.Add(time.Hour)
	})
	insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusEnded
		a.EndAt = now.Add(-time.Hour)
	})

	found, err := repo.FindExpiredLive(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, expired.ID, found[0].ID)
}

func TestRepositoryFindEndedAwaitingReaward(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	// Reset after a failed charge: ended, winner cleared, bids still ledgered.
	resettable := insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusEnded
		a.EndAt = now.Add(-time.Hour)
	})
	require.NoError(t, db.Create(&models.Bid{
		ID:          uuid.New(),
		AuctionID:   resettable.ID,
		BidderID:    uuid.New(),
		AmountCents: 2000,
	}).Error)

	// Ended with no bids: nothing left to award.
	insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusEnded
		a.EndAt = now.Add(-time.Hour)
	})

	// Ended with a winner recorded is a completed sale, not a reset.
	winner := uuid.New()
	sold := insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusEnded
		a.EndAt = now.Add(-time.Hour)
		a.WinnerID = &winner
	})
	require.NoError(t, db.Create(&models.Bid{
		ID:          uuid.New(),
		AuctionID:   sold.ID,
		BidderID:    winner,
		AmountCents: 2500,
	}).Error)

	found, err := repo.FindEndedAwaitingReaward(ctx, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, resettable.ID, found[0].ID)
}

func TestRepositoryFindDueScheduled(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusScheduled
		a.StartAt = now.Add(-time.Minute)
	})
	insertTestAuction(t, db, func(a *models.Auction) {
		a.Status = enums.AuctionStatusScheduled
		a.StartAt = now.Add(time.Hour)
	})

	found, err := repo.FindDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestRepositoryListScopedToTenant(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	insertTestAuction(t, db, func(a *models.Auction) { a.TenantID = tenantID })
	insertTestAuction(t, db, func(a *models.Auction) { a.TenantID = tenantID })
	insertTestAuction(t, db, nil)

	rows, cursor, err := repo.List(ctx, ListAuctionsParams{TenantID: tenantID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Nil(t, cursor)
	for _, row := range rows {
		assert.Equal(t, tenantID, row.TenantID)
	}
}

func TestRepositoryListPagination(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		createdAt := base.Add(time.Duration(i) * time.Minute)
		insertTestAuction(t, db, func(a *models.Auction) {
			a.TenantID = tenantID
			a.CreatedAt = createdAt
			a.UpdatedAt = createdAt
		})
	}

	firstPage, cursor, err := repo.List(ctx, ListAuctionsParams{TenantID: tenantID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, firstPage, 3)
	require.NotNil(t, cursor)

	secondPage, next, err := repo.List(ctx, ListAuctionsParams{TenantID: tenantID, Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	assert.Len(t, secondPage, 2)
	assert.Nil(t, next)

	seen := map[uuid.UUID]bool{}
	for _, row := range append(firstPage, secondPage...) {
		assert.False(t, seen[row.ID], "auction %s returned twice", row.ID)
		seen[row.ID] = true
	}
}

func TestRepositoryFindByIDTenantScoped(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	auction := insertTestAuction(t, db, nil)

	found, err := repo.FindByID(ctx, auction.TenantID, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.ID, found.ID)

	_, err = repo.FindByID(ctx, uuid.New(), auction.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryFindTenant(t *testing.T) {
	db := setupAuctionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	tenant := &models.Tenant{ID: uuid.New(), Name: "vintage", CommunityOwnerID: uuid.New()}
	require.NoError(t, db.Create(tenant).Error)

	found, err := repo.FindTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.CommunityOwnerID, found.CommunityOwnerID)

	_, err = repo.FindTenant(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now().UTC()
	scheduled := &models.Auction{Status: enums.AuctionStatusScheduled, StartAt: now.Add(time.Hour)}
	assert.Equal(t, enums.AuctionStatusScheduled, EffectiveStatus(scheduled, now))

	started := &models.Auction{Status: enums.AuctionStatusScheduled, StartAt: now.Add(-time.Minute)}
	assert.Equal(t, enums.AuctionStatusLive, EffectiveStatus(started, now))

	ended := &models.Auction{Status: enums.AuctionStatusEnded, StartAt: now.Add(-time.Hour)}
	assert.Equal(t, enums.AuctionStatusEnded, EffectiveStatus(ended, now))
}
