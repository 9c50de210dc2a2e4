package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bidhaus/bidhaus-backend/api/controllers"
	webhookcontrollers "github.com/bidhaus/bidhaus-backend/api/controllers/webhooks"
	"github.com/bidhaus/bidhaus-backend/api/middleware"
	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/barracks"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/internal/fulfillment"
	"github.com/bidhaus/bidhaus-backend/internal/notifications"
	squarewebhook "github.com/bidhaus/bidhaus-backend/internal/webhooks/square"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
	"github.com/bidhaus/bidhaus-backend/pkg/square"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	auctionsService auctions.Service,
	bidsService bids.Service,
	barracksService barracks.Service,
	fulfillmentService fulfillment.Service,
	notificationsService notifications.Service,
	squareClient *square.Client,
	squareWebhookService *squarewebhook.Service,
	squareWebhookGuard *squarewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(squareWebhookService, squareClient, squareWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/auctions", func(r chi.Router) {
			r.Get("/", controllers.ListAuctions(auctionsService, logg))
			r.Post("/", controllers.CreateAuction(auctionsService, logg))
			r.Get("/{auctionId}", controllers.GetAuction(auctionsService, logg))
			r.Patch("/{auctionId}", controllers.UpdateAuction(auctionsService, logg))
			r.Post("/{auctionId}/buy-now", controllers.BuyNow(auctionsService, logg))
			r.Get("/{auctionId}/bids", controllers.ListBids(bidsService, logg))
			r.Get("/{auctionId}/bids/high", controllers.HighBid(bidsService, logg))
			r.With(middleware.BidRateLimit(cfg.BidRateLimit, redisClient, logg)).
				Post("/{auctionId}/bids", controllers.PlaceBid(bidsService, logg))
		})

		r.Route("/barracks", func(r chi.Router) {
			r.Get("/", controllers.ListBarracks(barracksService, logg))
			r.Get("/{itemId}", controllers.GetBarracksItem(barracksService, logg))
			r.Post("/{itemId}/confirm-receipt", controllers.ConfirmReceipt(barracksService, auctionsService, logg))
		})

		r.Route("/fulfillment", func(r chi.Router) {
			r.Get("/{auctionId}", controllers.GetFulfillment(fulfillmentService, logg))
			r.Post("/{auctionId}/ship", controllers.MarkShipped(fulfillmentService, logg))
			r.Post("/{auctionId}/dispute", controllers.Dispute(fulfillmentService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
