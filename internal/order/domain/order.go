package domain

import "time"

type OrderID string
type ProductID string

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

type FulfillmentMode string

const (
	FulfillmentDelivery FulfillmentMode = "Delivery"
	FulfillmentPickup   FulfillmentMode = "Pickup"
)

// PickupDateLayout is the only accepted pickup date format.
const PickupDateLayout = "2006-01-02"

type Fulfillment struct {
	Mode            FulfillmentMode
	DeliveryAddress string
	PickupDate      string
}

// Product is a catalog entry. Orders change only Quantity; sellers edit the rest.
type Product struct {
	ID        ProductID
	SellerID  string
	Name      string
	Unit      string
	Price     Money
	Quantity  int
	Available bool
	CreatedAt time.Time
}

type LineItem struct {
	ID        string
	OrderID   OrderID
	ProductID ProductID
	Quantity  int
	UnitPrice Money // frozen at order time
	Subtotal  Money
}

type Order struct {
	ID       OrderID
	Number   string
	BuyerID  string
	SellerID string
	Total    Money

	Status        OrderStatus
	PaymentStatus PaymentStatus
	Fulfillment   Fulfillment

	SpecialInstructions string
	CancelReason        string

	// ItemCount is filled by listing queries only.
	ItemCount int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CompletedAt *time.Time
}

func (o Order) IsFinal() bool {
	return o.Status.Terminal()
}

// OrderFilter selects orders for listing. Exactly one of SellerID and BuyerID is expected.
type OrderFilter struct {
	SellerID      string
	BuyerID       string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Offset        int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps paging values.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
