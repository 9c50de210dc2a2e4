package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAuction      OutboxAggregateType = "auction"
	AggregateBarracksItem OutboxAggregateType = "barracks_item"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAuction,
	AggregateBarracksItem,
	AggregatePayout,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAuctionWentLive       OutboxEventType = "auction_went_live"
	EventAuctionEnded          OutboxEventType = "auction_ended"
	EventAuctionWon            OutboxEventType = "auction_won"
	EventBuyNowPurchased       OutboxEventType = "buy_now_purchased"
	EventBidPlaced             OutboxEventType = "bid_placed"
	EventBidderOutbid          OutboxEventType = "bidder_outbid"
	EventPaymentSettled        OutboxEventType = "payment_settled"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventAuctionReset          OutboxEventType = "auction_reset"
	EventPayoutIssued          OutboxEventType = "payout_issued"
	EventItemShipped           OutboxEventType = "item_shipped"
	EventItemDelivered         OutboxEventType = "item_delivered"
	EventFulfillmentDisputed   OutboxEventType = "fulfillment_disputed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAuctionWentLive,
	EventAuctionEnded,
	EventAuctionWon,
	EventBuyNowPurchased,
	EventBidPlaced,
	EventBidderOutbid,
	EventPaymentSettled,
	EventPaymentFailed,
	EventAuctionReset,
	EventPayoutIssued,
	EventItemShipped,
	EventItemDelivered,
	EventFulfillmentDisputed,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
