package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/idempotency"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
)

const auctionNotificationConsumer = "auction-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and turns notification requests into
// persisted in-app notification rows.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds an auction notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if eventType != string(enums.EventNotificationRequested) {
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, auctionNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload payloads.NotificationRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, auctionNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"auction_id": payload.AuctionID.String(),
		"user_id":    payload.UserID.String(),
		"type":       string(payload.Type),
	})

	if err := c.createNotification(ctx, payload); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, auctionNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	c.logg.Info(logCtx, "notification persisted")
	return processResult{ack: true}
}

func (c *Consumer) createNotification(ctx context.Context, payload payloads.NotificationRequestedEvent) error {
	if payload.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}
	title, message := notificationCopy(payload.Type)
	if title == "" {
		return nil
	}
	link := fmt.Sprintf("/auctions/%s", payload.AuctionID)
	notification := &models.Notification{
		UserID:   payload.UserID,
		TenantID: payload.TenantID,
		Type:     payload.Type,
		Title:    title,
		Message:  message,
		Link:     &link,
	}
	return c.repo.Create(ctx, notification)
}

func notificationCopy(kind enums.NotificationType) (string, string) {
	switch kind {
	case enums.NotificationTypeAuctionWon:
		return "You won the auction", "You placed the winning bid. Complete payment to claim your item."
	case enums.NotificationTypeAuctionEnded:
		return "Auction ended", "An auction you were watching has closed."
	case enums.NotificationTypeOutbid:
		return "You have been outbid", "Another bidder raised the high bid. Place a new bid to stay in."
	case enums.NotificationTypePaymentSettled:
		return "Payment received", "Your payment settled. The seller is preparing your item."
	case enums.NotificationTypePaymentFailed:
		return "Payment failed", "Your payment did not go through and the auction was reopened."
	case enums.NotificationTypeItemShipped:
		return "Item shipped", "Your item is on the way."
	case enums.NotificationTypeItemDelivered:
		return "Item delivered", "Your item was marked delivered."
	case enums.NotificationTypePayoutIssued:
		return "Payout issued", "Your share of a completed sale has been transferred."
	default:
		return "", ""
	}
}
