package orders

import "github.com/angelmondragon/stockhold-backend/pkg/enums"

var transitions = map[enums.OrderStatus]map[enums.OrderStatus]bool{
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid:      true,
		enums.OrderStatusCancelled: true,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusShipped:   true,
		enums.OrderStatusDelivered: true,
		enums.OrderStatusCancelled: true,
	},
}

// CanTransition reports whether the order graph has an edge from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	return transitions[from][to]
}

// adminTargets are the statuses an administrator may request.
var adminTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusPaid:      true,
	enums.OrderStatusShipped:   true,
	enums.OrderStatusDelivered: true,
	enums.OrderStatusCancelled: true,
}

func eventForStatus(status enums.OrderStatus) enums.OutboxEventType {
	switch status {
	case enums.OrderStatusShipped:
		return enums.EventOrderShipped
	case enums.OrderStatusDelivered:
		return enums.EventOrderDelivered
	case enums.OrderStatusPaid:
		return enums.EventOrderPaid
	default:
		return enums.EventOrderCancelled
	}
}
