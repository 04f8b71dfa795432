package enums

import "slices"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeRSVPConfirmation  NotificationType = "rsvp_confirmation"
	NotificationTypeRSVPWaitlisted    NotificationType = "rsvp_waitlisted"
	NotificationTypeWaitlistPromotion NotificationType = "waitlist_promotion"
	NotificationTypeRSVPCancelled     NotificationType = "rsvp_cancelled"
	NotificationTypeEventCancelled    NotificationType = "event_cancelled"
	NotificationTypeEventUpdated      NotificationType = "event_updated"
	NotificationTypeCreditRefunded    NotificationType = "credit_refunded"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeRSVPConfirmation,
	NotificationTypeRSVPWaitlisted,
	NotificationTypeWaitlistPromotion,
	NotificationTypeRSVPCancelled,
	NotificationTypeEventCancelled,
	NotificationTypeEventUpdated,
	NotificationTypeCreditRefunded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool { return slices.Contains(validNotificationTypes, n) }

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(validNotificationTypes, "notification type", value)
}
