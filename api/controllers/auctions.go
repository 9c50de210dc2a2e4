package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bidhaus/bidhaus-backend/api/responses"
	"github.com/bidhaus/bidhaus-backend/api/validators"
	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

const (
	maxAuctionTitleLength       = 200
	maxAuctionDescriptionLength = 5000
)

type createAuctionRequest struct {
	Title               string          `json:"title" validate:"required,max=200"`
	Description         *string         `json:"description" validate:"omitempty,max=5000"`
	ItemKind            string          `json:"itemKind" validate:"required"`
	StartPriceCents     int64           `json:"startPriceCents" validate:"required,gt=0"`
	MinIncrementCents   int64           `json:"minIncrementCents" validate:"required,gt=0"`
	BuyNowPriceCents    *int64          `json:"buyNowPriceCents" validate:"omitempty,gt=0"`
	ShippingCostCents   int64           `json:"shippingCostCents" validate:"min=0"`
	PlatformFeePercent  decimal.Decimal `json:"platformFeePercent"`
	CommunityFeePercent decimal.Decimal `json:"communityFeePercent"`
	StartAt             time.Time       `json:"startAt" validate:"required"`
	EndAt               time.Time       `json:"endAt" validate:"required"`
}

type updateAuctionRequest struct {
	Title             *string    `json:"title" validate:"omitempty,max=200"`
	Description       *string    `json:"description" validate:"omitempty,max=5000"`
	StartPriceCents   *int64     `json:"startPriceCents" validate:"omitempty,gt=0"`
	MinIncrementCents *int64     `json:"minIncrementCents" validate:"omitempty,gt=0"`
	BuyNowPriceCents  *int64     `json:"buyNowPriceCents" validate:"omitempty,gt=0"`
	ShippingCostCents *int64     `json:"shippingCostCents" validate:"omitempty,min=0"`
	EndAt             *time.Time `json:"endAt"`
}

type buyNowRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// CreateAuction lets a seller draft a listing in the active tenant.
func CreateAuction(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auctions service unavailable"))
			return
		}

		sellerID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createAuctionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseItemKind(req.ItemKind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item kind"))
			return
		}

		params := auctions.CreateParams{
			TenantID:            tenantID,
			SellerID:            sellerID,
			Title:               validators.SanitizeString(req.Title, maxAuctionTitleLength),
			ItemKind:            kind,
			StartPriceCents:     req.StartPriceCents,
			MinIncrementCents:   req.MinIncrementCents,
			BuyNowPriceCents:    req.BuyNowPriceCents,
			ShippingCostCents:   req.ShippingCostCents,
			PlatformFeePercent:  req.PlatformFeePercent,
			CommunityFeePercent: req.CommunityFeePercent,
			StartAt:             req.StartAt,
			EndAt:               req.EndAt,
		}
		if req.Description != nil {
			desc := validators.SanitizeString(*req.Description, maxAuctionDescriptionLength)
			params.Description = &desc
		}

		auction, err := svc.Create(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, auction)
	}
}

// GetAuction returns a single auction in the active tenant.
func GetAuction(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auctions service unavailable"))
			return
		}

		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auction, err := svc.Get(r.Context(), tenantID, auctionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, auction)
	}
}

// ListAuctions returns a tenant-scoped auction page with optional seller
// and status filters.
func ListAuctions(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auctions service unavailable"))
			return
		}

		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := auctions.ListParams{
			TenantID: tenantID,
			Limit:    limit,
			Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		if rawSeller := strings.TrimSpace(r.URL.Query().Get("sellerId")); rawSeller != "" {
			sellerID, err := uuid.Parse(rawSeller)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
				return
			}
			params.SellerID = &sellerID
		}

		if rawStatus := strings.TrimSpace(r.URL.Query().Get("status")); rawStatus != "" {
			status, err := enums.ParseAuctionStatus(rawStatus)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = string(status)
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UpdateAuction applies a seller's listing edit. Commercial terms are
// rejected downstream once bidding has started.
func UpdateAuction(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auctions service unavailable"))
			return
		}

		sellerID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateAuctionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := auctions.UpdateParams{
			TenantID:          tenantID,
			AuctionID:         auctionID,
			SellerID:          sellerID,
			Description:       req.Description,
			StartPriceCents:   req.StartPriceCents,
			MinIncrementCents: req.MinIncrementCents,
			BuyNowPriceCents:  req.BuyNowPriceCents,
			ShippingCostCents: req.ShippingCostCents,
			EndAt:             req.EndAt,
		}
		if req.Title != nil {
			title := validators.SanitizeString(*req.Title, maxAuctionTitleLength)
			params.Title = &title
		}

		auction, err := svc.UpdateTerms(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, auction)
	}
}

// BuyNow executes an instant purchase at the listed buy-now price.
func BuyNow(svc auctions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auctions service unavailable"))
			return
		}

		buyerID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req buyNowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auction, err := svc.BuyNow(r.Context(), auctions.BuyNowParams{
			TenantID:    tenantID,
			AuctionID:   auctionID,
			BuyerID:     buyerID,
			AmountCents: req.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, auction)
	}
}

func parseAuctionID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "auctionId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid auction id")
	}
	return id, nil
}
