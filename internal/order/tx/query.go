package tx

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
)

// GetOrder returns an order with its line items. Both parties may read it.
func (c *Coordinator) GetOrder(ctx context.Context, orderID domain.OrderID, actorID string) (OrderDetails, error) {
	var out OrderDetails
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Order(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			return domain.Errorf(domain.KindOrderNotFound, "order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if actorID == "" || (actorID != o.BuyerID && actorID != o.SellerID) {
			return domain.Errorf(domain.KindUnauthorized, "unauthorized: order %s is not visible to %s", orderID, actorID)
		}
		items, err := tx.LineItems(ctx, orderID)
		if err != nil {
			return err
		}
		out = OrderDetails{Order: o, Items: items, ItemCount: len(items)}
		for _, it := range items {
			out.TotalQuantity += it.Quantity
		}
		out.Order.ItemCount = len(items)
		return nil
	})
	if err != nil {
		return OrderDetails{}, domain.Persistence("get order", err)
	}
	return out, nil
}

// ListOrders requires exactly one of SellerID and BuyerID.
func (c *Coordinator) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	f.SellerID = strings.TrimSpace(f.SellerID)
	f.BuyerID = strings.TrimSpace(f.BuyerID)
	if (f.SellerID == "") == (f.BuyerID == "") {
		return nil, domain.Errorf(domain.KindInvalidRequest, "exactly one of seller_id and buyer_id is required")
	}
	if f.Status != "" && !f.Status.Valid() {
		_, err := domain.ParseOrderStatus(string(f.Status))
		return nil, err
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		_, err := domain.ParsePaymentStatus(string(f.PaymentStatus))
		return nil, err
	}
	f = f.Normalize()

	var out []domain.Order
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, f)
		return err
	})
	if err != nil {
		return nil, domain.Persistence("list orders", err)
	}
	return out, nil
}

func (c *Coordinator) Timeline(ctx context.Context, orderID domain.OrderID, actorID string) ([]domain.TimelineEntry, error) {
	d, err := c.GetOrder(ctx, orderID, actorID)
	if err != nil {
		return nil, err
	}
	return domain.Timeline(d.Order), nil
}

func (c *Coordinator) ValidateForProcessing(ctx context.Context, orderID domain.OrderID, actorID string) (domain.Validation, error) {
	d, err := c.GetOrder(ctx, orderID, actorID)
	if err != nil {
		return domain.Validation{}, err
	}
	return domain.ValidateForProcessing(d.Order, d.Items), nil
}

// CreateProduct registers catalog stock for a seller.
func (c *Coordinator) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.SellerID = strings.TrimSpace(p.SellerID)
	p.Name = strings.TrimSpace(p.Name)
	if p.SellerID == "" || p.Name == "" || p.Quantity < 0 || p.Price < 0 {
		return domain.Product{}, domain.Errorf(domain.KindInvalidRequest, "seller, name, non-negative price and quantity are required")
	}
	if p.ID == "" {
		p.ID = domain.ProductID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.now()
	}
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateProduct(ctx, p)
	})
	if errors.Is(err, ErrDuplicateKey) {
		return domain.Product{}, domain.Errorf(domain.KindInvalidRequest, "product %s already exists", p.ID)
	}
	if err != nil {
		return domain.Product{}, domain.Persistence("create product", err)
	}
	return p, nil
}

func (c *Coordinator) Product(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var out domain.Product
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.Product(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return domain.Errorf(domain.KindProductNotFound, "product %s not found", id)
		}
		out = p
		return err
	})
	if err != nil {
		return domain.Product{}, domain.Persistence("get product", err)
	}
	return out, nil
}
