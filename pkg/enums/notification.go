package enums

import "fmt"

// NotificationType classifies buyer notifications.
type NotificationType string

const (
	NotificationTypeOrderPaid    NotificationType = "order_paid"
	NotificationTypeOrderExpired NotificationType = "order_expired"
	NotificationTypeOrderStatus  NotificationType = "order_status"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPaid,
	NotificationTypeOrderExpired,
	NotificationTypeOrderStatus,
}

func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
