package tx

import (
	"context"
	"errors"
	"time"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
)

// Store errors. Implementations return these (possibly wrapped) so the
// coordinator can map them to domain kinds.
var (
	ErrNotFound     = errors.New("record not found")
	ErrOutOfStock   = errors.New("out of stock")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store opens scoped transactions. WithinTx commits when fn returns nil and
// rolls back on every other exit path, panics included.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Inventory adjusts product stock inside the enclosing transaction.
type Inventory interface {
	// Reserve decrements stock only if at least qty units are available,
	// as a single conditional update. It returns ErrOutOfStock otherwise.
	Reserve(ctx context.Context, productID domain.ProductID, qty int) error
	// Release increments stock unconditionally. Unknown products are skipped.
	Release(ctx context.Context, productID domain.ProductID, qty int) error
}

type Tx interface {
	Inventory

	Product(ctx context.Context, id domain.ProductID) (domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	// UpdateProduct overwrites name, unit, price, quantity and availability.
	UpdateProduct(ctx context.Context, p domain.Product) error
	// DeleteProduct also drops the product from every cart.
	DeleteProduct(ctx context.Context, id domain.ProductID) error
	ProductHasOrders(ctx context.Context, id domain.ProductID) (bool, error)
	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)

	// CartItems returns the buyer's cart joined with the catalog, oldest first.
	CartItems(ctx context.Context, buyerID string) ([]domain.CartItem, error)
	// SetCartItem stores qty as the cart quantity, keeping the original AddedAt.
	SetCartItem(ctx context.Context, buyerID string, productID domain.ProductID, qty int, at time.Time) error
	RemoveCartItem(ctx context.Context, buyerID string, productID domain.ProductID) error
	// ClearCart removes the buyer's items, only sellerID's when it is set.
	ClearCart(ctx context.Context, buyerID, sellerID string) error

	InsertOrder(ctx context.Context, o domain.Order) error
	InsertLineItem(ctx context.Context, it domain.LineItem) error
	// Order loads an order for update; Postgres locks the row.
	Order(ctx context.Context, id domain.OrderID) (domain.Order, error)
	LineItems(ctx context.Context, orderID domain.OrderID) ([]domain.LineItem, error)
	// SaveOrderState persists status, payment status, timestamps and cancel reason.
	SaveOrderState(ctx context.Context, o domain.Order) error
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)

	OrderIDByIdempotencyKey(ctx context.Context, key string) (domain.OrderID, error)
	SaveIdempotencyKey(ctx context.Context, key string, orderID domain.OrderID) error

	AppendEvent(ctx context.Context, evt contracts.Event) error
}

type ItemInput struct {
	ProductID domain.ProductID
	Quantity  int
	// UnitPrice is nil when the caller did not supply one.
	UnitPrice *domain.Money
}

type CreateOrderInput struct {
	BuyerID             string
	SellerID            string
	Items               []ItemInput
	Fulfillment         domain.Fulfillment
	SpecialInstructions string
	IdempotencyKey      string
}

type CheckoutItem struct {
	SellerID string
	ItemInput
}

type CheckoutInput struct {
	BuyerID             string
	Items               []CheckoutItem
	Fulfillment         domain.Fulfillment
	SpecialInstructions string
}

// CartCheckoutInput checks out the buyer's stored cart, or only SellerID's
// part of it when SellerID is set.
type CartCheckoutInput struct {
	BuyerID             string
	SellerID            string
	Fulfillment         domain.Fulfillment
	SpecialInstructions string
}

type OrderSummary struct {
	OrderID   domain.OrderID
	Number    string
	SellerID  string
	Total     domain.Money
	ItemCount int
	// Replayed is set when an idempotency key resolved to an existing order.
	Replayed bool
}

type StatusChange struct {
	From  domain.OrderStatus
	To    domain.OrderStatus
	Order domain.Order
}

type OrderDetails struct {
	Order         domain.Order
	Items         []domain.LineItem
	ItemCount     int
	TotalQuantity int
}
