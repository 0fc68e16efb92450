package enums

// NotificationType labels the notification rows the dispatcher creates.
type NotificationType string

const (
	NotificationOrderPlaced      NotificationType = "order_placed"
	NotificationPaymentConfirmed NotificationType = "payment_confirmed"
	NotificationPaymentFailed    NotificationType = "payment_failed"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationOrderShipped     NotificationType = "order_shipped"
	NotificationOrderDelivered   NotificationType = "order_delivered"
	NotificationOrderReturned    NotificationType = "order_returned"
)
