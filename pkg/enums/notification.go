package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeAuctionWon     NotificationType = "auction_won"
	NotificationTypeAuctionEnded   NotificationType = "auction_ended"
	NotificationTypeOutbid         NotificationType = "outbid"
	NotificationTypePaymentSettled NotificationType = "payment_settled"
	NotificationTypePaymentFailed  NotificationType = "payment_failed"
	NotificationTypeItemShipped    NotificationType = "item_shipped"
	NotificationTypeItemDelivered  NotificationType = "item_delivered"
	NotificationTypePayoutIssued   NotificationType = "payout_issued"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAuctionWon,
	NotificationTypeAuctionEnded,
	NotificationTypeOutbid,
	NotificationTypePaymentSettled,
	NotificationTypePaymentFailed,
	NotificationTypeItemShipped,
	NotificationTypeItemDelivered,
	NotificationTypePayoutIssued,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
