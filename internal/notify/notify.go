// Package notify turns order events into per-recipient notifications.
package notify

import (
	"fmt"

	"github.com/nazeru/agrimarket-go/pkg/contracts"
)

// Recipient roles. The payload carries the party's id under "<role>_id".
const (
	RecipientBuyer  = "buyer"
	RecipientSeller = "seller"
)

type Notification struct {
	EventID   string
	OrderID   string
	Recipient string
	Kind      string
	Message   string
}

// Build returns the notifications an event produces. Inventory events and
// events without an id produce none.
func Build(evt contracts.Event) []Notification {
	if evt.EventID == "" {
		return nil
	}
	p := payload(evt.Payload)
	number := p.str("order_number")
	if number == "" {
		number = evt.OrderID
	}

	var out []Notification
	add := func(role, message string) {
		to := p.str(role + "_id")
		if to == "" {
			return
		}
		out = append(out, Notification{
			EventID:   evt.EventID,
			OrderID:   evt.OrderID,
			Recipient: to,
			Kind:      evt.Type,
			Message:   message,
		})
	}

	switch evt.Type {
	case contracts.EventOrderCreated:
		add(RecipientSeller, fmt.Sprintf("New order %s for %s", number, p.str("total")))
		add(RecipientBuyer, fmt.Sprintf("Your order %s has been placed", number))
	case contracts.EventOrderConfirmed:
		add(RecipientBuyer, fmt.Sprintf("Your order %s was confirmed by the seller", number))
	case contracts.EventOrderCompleted:
		add(RecipientBuyer, fmt.Sprintf("Your order %s is complete", number))
	case contracts.EventOrderCancelled:
		msg := fmt.Sprintf("Order %s was cancelled", number)
		if reason := p.str("reason"); reason != "" {
			msg += ": " + reason
		}
		add(RecipientBuyer, msg)
	case contracts.EventOrderPaymentUpdated:
		add(RecipientBuyer, fmt.Sprintf("Payment for order %s is now %s", number, p.str("to_payment")))
	}
	return out
}

type payload map[string]any

func (p payload) str(key string) string {
	s, _ := p[key].(string)
	return s
}
