package enums

import "fmt"

// NotificationKind identifies the template family used for a dispatched notification.
type NotificationKind string

const (
	NotificationKindOrderConfirmation NotificationKind = "order_confirmation"
	NotificationKindOrderStatusUpdate NotificationKind = "order_status_update"
	NotificationKindOrderCancelled    NotificationKind = "order_cancelled"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderConfirmation,
	NotificationKindOrderStatusUpdate,
	NotificationKindOrderCancelled,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
