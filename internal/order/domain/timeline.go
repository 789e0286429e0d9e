package domain

import "time"

type TimelineEntry struct {
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
}

// Timeline projects the stored order state into display events, oldest first.
func Timeline(o Order) []TimelineEntry {
	out := []TimelineEntry{{
		At:          o.CreatedAt,
		Type:        "created",
		Status:      "Created",
		Description: "Order placed",
	}}
	if o.ConfirmedAt != nil {
		out = append(out, TimelineEntry{
			At:          *o.ConfirmedAt,
			Type:        "confirmed",
			Status:      string(OrderStatusConfirmed),
			Description: "Order confirmed by seller",
		})
	}
	if o.PaymentStatus == PaymentStatusPaid {
		// no separate payment timestamp is stored
		out = append(out, TimelineEntry{
			At:          o.UpdatedAt,
			Type:        "payment",
			Status:      "Payment Received",
			Description: "Payment confirmed",
		})
	}
	if o.Status == OrderStatusCompleted && o.CompletedAt != nil {
		out = append(out, TimelineEntry{
			At:          *o.CompletedAt,
			Type:        "completed",
			Status:      string(OrderStatusCompleted),
			Description: "Order completed and delivered or picked up",
		})
	}
	if o.Status == OrderStatusCancelled {
		desc := "Order was cancelled"
		if o.CancelReason != "" {
			desc += ": " + o.CancelReason
		}
		out = append(out, TimelineEntry{
			At:          o.UpdatedAt,
			Type:        "cancelled",
			Status:      string(OrderStatusCancelled),
			Description: desc,
		})
	}
	return out
}

type Validation struct {
	OrderID  OrderID     `json:"order_id"`
	Status   OrderStatus `json:"status"`
	Valid    bool        `json:"valid"`
	Problems []string    `json:"problems"`
}

// ValidateForProcessing reports everything that would stop a seller from
// fulfilling the order as stored.
func ValidateForProcessing(o Order, items []LineItem) Validation {
	v := Validation{OrderID: o.ID, Status: o.Status, Problems: []string{}}
	if len(items) == 0 {
		v.Problems = append(v.Problems, "order has no items")
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			v.Problems = append(v.Problems, "invalid item data")
			break
		}
	}
	switch o.Fulfillment.Mode {
	case FulfillmentDelivery:
		if o.Fulfillment.DeliveryAddress == "" {
			v.Problems = append(v.Problems, "delivery address is required")
		}
	case FulfillmentPickup:
		if o.Fulfillment.PickupDate == "" {
			v.Problems = append(v.Problems, "pickup date is required")
		}
	default:
		v.Problems = append(v.Problems, "fulfillment mode is missing")
	}
	v.Valid = len(v.Problems) == 0
	return v
}
