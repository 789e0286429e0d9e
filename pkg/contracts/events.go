package contracts

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EventOrderCreated        = "order.created"
	EventOrderConfirmed      = "order.confirmed"
	EventOrderCompleted      = "order.completed"
	EventOrderCancelled      = "order.cancelled"
	EventOrderPaymentUpdated = "order.payment_updated"
	EventInventoryReserved   = "inventory.reserved"
	EventInventoryReleased   = "inventory.released"
)

func NewEvent(typ, orderID, actorID string, at time.Time, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		ActorID:   actorID,
		CreatedAt: at.UTC(),
		Type:      typ,
		Payload:   payload,
	}
}
