package tx

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/logging"
)

// Coordinator creates and cancels orders as single all-or-nothing units and
// drives the status state machine.
type Coordinator struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		log:   zap.NewNop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type orderDraft struct {
	buyerID      string
	sellerID     string
	items        []ItemInput
	fulfillment  domain.Fulfillment
	instructions string
}

func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderSummary, error) {
	start := time.Now()
	if err := checkHeader(in.BuyerID, in.SellerID, len(in.Items)); err != nil {
		return OrderSummary{}, c.rejected("create_order", "", err)
	}
	if err := in.Fulfillment.Validate(); err != nil {
		return OrderSummary{}, c.rejected("create_order", "", err)
	}

	key := idempotencyScope(in.BuyerID, in.IdempotencyKey)
	draft := orderDraft{
		buyerID:      strings.TrimSpace(in.BuyerID),
		sellerID:     strings.TrimSpace(in.SellerID),
		items:        in.Items,
		fulfillment:  in.Fulfillment.Normalized(),
		instructions: strings.TrimSpace(in.SpecialInstructions),
	}

	var out OrderSummary
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if key != "" {
			s, ok, err := replay(ctx, tx, key)
			if err != nil || ok {
				out = s
				return err
			}
		}
		s, err := c.createInTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		if key != "" {
			if err := tx.SaveIdempotencyKey(ctx, key, s.OrderID); err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	if err != nil && key != "" && errors.Is(err, ErrDuplicateKey) {
		// A concurrent request with the same key committed first.
		err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			s, ok, err := replay(ctx, tx, key)
			if err == nil && !ok {
				err = fmt.Errorf("idempotency key %q vanished after conflict", in.IdempotencyKey)
			}
			out = s
			return err
		})
	}
	if err != nil {
		return OrderSummary{}, c.rejected("create_order", "", domain.Persistence("create order", err))
	}

	status := "created"
	if out.Replayed {
		status = "replayed"
	}
	logging.Log(c.log, logging.Fields{
		OrderID:    string(out.OrderID),
		ActorID:    in.BuyerID,
		Step:       "create_order",
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
		Message:    "order " + status,
	})
	return out, nil
}

// Checkout turns a multi-seller cart into one order per seller. All orders are
// created in the same transaction, so either every seller gets an order or
// none does.
func (c *Coordinator) Checkout(ctx context.Context, in CheckoutInput) ([]OrderSummary, error) {
	if strings.TrimSpace(in.BuyerID) == "" || len(in.Items) == 0 {
		return nil, c.rejected("checkout", "", domain.Errorf(domain.KindInvalidRequest, "buyer and at least one item are required"))
	}
	if err := in.Fulfillment.Validate(); err != nil {
		return nil, c.rejected("checkout", "", err)
	}

	var sellers []string
	bySeller := map[string][]ItemInput{}
	for _, it := range in.Items {
		seller := strings.TrimSpace(it.SellerID)
		if seller == "" {
			return nil, c.rejected("checkout", "", domain.Errorf(domain.KindInvalidItem, "item for product %q has no seller", it.ProductID))
		}
		if _, ok := bySeller[seller]; !ok {
			sellers = append(sellers, seller)
		}
		bySeller[seller] = append(bySeller[seller], it.ItemInput)
	}

	var out []OrderSummary
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = c.checkoutInTx(ctx, tx, sellers, bySeller, orderDraft{
			buyerID:      strings.TrimSpace(in.BuyerID),
			fulfillment:  in.Fulfillment.Normalized(),
			instructions: strings.TrimSpace(in.SpecialInstructions),
		})
		return err
	})
	if err != nil {
		return nil, c.rejected("checkout", "", domain.Persistence("checkout", err))
	}
	c.log.Info("checkout completed", zap.String("actor_id", in.BuyerID), zap.Int("orders", len(out)))
	return out, nil
}

// checkoutInTx creates one order per seller, in the given seller order, from
// the shared fields of base.
func (c *Coordinator) checkoutInTx(ctx context.Context, tx Tx, sellers []string, bySeller map[string][]ItemInput, base orderDraft) ([]OrderSummary, error) {
	out := make([]OrderSummary, 0, len(sellers))
	for _, seller := range sellers {
		d := base
		d.sellerID = seller
		d.items = bySeller[seller]
		s, err := c.createInTx(ctx, tx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Coordinator) createInTx(ctx context.Context, tx Tx, d orderDraft) (OrderSummary, error) {
	requested := make(map[domain.ProductID]int, len(d.items))
	lines := make([]domain.LineItem, 0, len(d.items))
	var total domain.Money

	for i, it := range d.items {
		if strings.TrimSpace(string(it.ProductID)) == "" || it.Quantity <= 0 || it.UnitPrice == nil || *it.UnitPrice < 0 {
			return OrderSummary{}, domain.Errorf(domain.KindInvalidItem, "item %d: product_id, quantity > 0 and a non-negative unit_price are required", i+1)
		}
		p, err := tx.Product(ctx, it.ProductID)
		if errors.Is(err, ErrNotFound) || (err == nil && p.SellerID != d.sellerID) {
			return OrderSummary{}, domain.Errorf(domain.KindProductNotFound, "product %s not found or does not belong to seller %s", it.ProductID, d.sellerID)
		}
		if err != nil {
			return OrderSummary{}, domain.Persistence("load product", err)
		}
		if !p.Available {
			return OrderSummary{}, domain.Errorf(domain.KindProductUnavailable, "product %s is not available", p.Name)
		}
		want := requested[p.ID] + it.Quantity
		if p.Quantity < want {
			return OrderSummary{}, domain.InsufficientInventory(p, want)
		}
		requested[p.ID] = want

		subtotal, ok := it.UnitPrice.Mul(it.Quantity)
		if ok {
			total, ok = total.Add(subtotal)
		}
		if !ok {
			return OrderSummary{}, domain.Errorf(domain.KindInvalidItem, "item %d: order total exceeds the supported amount", i+1)
		}
		lines = append(lines, domain.LineItem{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Quantity:  it.Quantity,
			UnitPrice: *it.UnitPrice,
			Subtotal:  subtotal,
		})
	}

	now := c.now()
	order := domain.Order{
		ID:                  domain.OrderID(uuid.NewString()),
		Number:              orderNumber(now),
		BuyerID:             d.buyerID,
		SellerID:            d.sellerID,
		Total:               total,
		Status:              domain.OrderStatusPending,
		PaymentStatus:       domain.PaymentStatusPending,
		Fulfillment:         d.fulfillment,
		SpecialInstructions: d.instructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return OrderSummary{}, domain.Persistence("insert order", err)
	}

	for _, line := range lines {
		line.OrderID = order.ID
		if err := tx.InsertLineItem(ctx, line); err != nil {
			return OrderSummary{}, domain.Persistence("insert line item", err)
		}
		if err := tx.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, ErrOutOfStock) {
				return OrderSummary{}, lostReservation(ctx, tx, line)
			}
			return OrderSummary{}, domain.Persistence("reserve inventory", err)
		}
		evt := contracts.NewEvent(contracts.EventInventoryReserved, string(order.ID), d.buyerID, now, map[string]any{
			"product_id": string(line.ProductID),
			"quantity":   line.Quantity,
		})
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return OrderSummary{}, domain.Persistence("append event", err)
		}
	}

	evt := contracts.NewEvent(contracts.EventOrderCreated, string(order.ID), d.buyerID, now, map[string]any{
		"order_number": order.Number,
		"buyer_id":     order.BuyerID,
		"seller_id":    order.SellerID,
		"total":        order.Total.String(),
		"item_count":   len(lines),
		"fulfillment":  string(order.Fulfillment.Mode),
	})
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return OrderSummary{}, domain.Persistence("append event", err)
	}

	return OrderSummary{
		OrderID:   order.ID,
		Number:    order.Number,
		SellerID:  order.SellerID,
		Total:     total,
		ItemCount: len(lines),
	}, nil
}

// lostReservation reports a reservation that failed after validation passed,
// i.e. a concurrent order took the stock in between.
func lostReservation(ctx context.Context, tx Tx, line domain.LineItem) error {
	p, err := tx.Product(ctx, line.ProductID)
	if err != nil {
		e := domain.Errorf(domain.KindInsufficientInventory, "insufficient inventory for product %s: requested %d", line.ProductID, line.Quantity)
		e.ProductID = line.ProductID
		e.Requested = line.Quantity
		return e
	}
	return domain.InsufficientInventory(p, line.Quantity)
}

func (c *Coordinator) CancelOrder(ctx context.Context, orderID domain.OrderID, sellerID, reason string) (domain.Order, error) {
	var out domain.Order
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := loadOwned(ctx, tx, orderID, sellerID)
		if err != nil {
			return err
		}
		if o.IsFinal() {
			return domain.Errorf(domain.KindAlreadyFinalized, "cannot cancel order with status %s", o.Status)
		}
		out, err = c.cancelInTx(ctx, tx, o, sellerID, strings.TrimSpace(reason))
		return err
	})
	if err != nil {
		return domain.Order{}, c.rejected("cancel_order", string(orderID), domain.Persistence("cancel order", err))
	}
	logging.Log(c.log, logging.Fields{OrderID: string(orderID), ActorID: sellerID, Step: "cancel_order", Status: string(out.Status), Message: "order cancelled"})
	return out, nil
}

// cancelInTx is the only way an order reaches Cancelled: every line item is
// released back to stock in the caller's transaction.
func (c *Coordinator) cancelInTx(ctx context.Context, tx Tx, o domain.Order, actorID, reason string) (domain.Order, error) {
	items, err := tx.LineItems(ctx, o.ID)
	if err != nil {
		return domain.Order{}, domain.Persistence("load line items", err)
	}
	now := c.now()
	for _, it := range items {
		if err := tx.Release(ctx, it.ProductID, it.Quantity); err != nil {
			return domain.Order{}, domain.Persistence("release inventory", err)
		}
		evt := contracts.NewEvent(contracts.EventInventoryReleased, string(o.ID), actorID, now, map[string]any{
			"product_id": string(it.ProductID),
			"quantity":   it.Quantity,
		})
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return domain.Order{}, domain.Persistence("append event", err)
		}
	}

	from := o.Status
	o.Status = domain.OrderStatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = now
	if err := tx.SaveOrderState(ctx, o); err != nil {
		return domain.Order{}, domain.Persistence("save order", err)
	}
	evt := contracts.NewEvent(contracts.EventOrderCancelled, string(o.ID), actorID, now, map[string]any{
		"order_number":   o.Number,
		"buyer_id":       o.BuyerID,
		"seller_id":      o.SellerID,
		"from_status":    string(from),
		"reason":         reason,
		"released_items": len(items),
	})
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return domain.Order{}, domain.Persistence("append event", err)
	}
	return o, nil
}

func loadOwned(ctx context.Context, tx Tx, orderID domain.OrderID, sellerID string) (domain.Order, error) {
	o, err := tx.Order(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return domain.Order{}, domain.Errorf(domain.KindOrderNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return domain.Order{}, domain.Persistence("load order", err)
	}
	if sellerID == "" || o.SellerID != sellerID {
		return domain.Order{}, domain.Errorf(domain.KindUnauthorized, "unauthorized: you do not own order %s", orderID)
	}
	return o, nil
}

func replay(ctx context.Context, tx Tx, key string) (OrderSummary, bool, error) {
	id, err := tx.OrderIDByIdempotencyKey(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return OrderSummary{}, false, nil
	}
	if err != nil {
		return OrderSummary{}, false, err
	}
	o, err := tx.Order(ctx, id)
	if err != nil {
		return OrderSummary{}, false, err
	}
	items, err := tx.LineItems(ctx, id)
	if err != nil {
		return OrderSummary{}, false, err
	}
	return OrderSummary{
		OrderID:   o.ID,
		Number:    o.Number,
		SellerID:  o.SellerID,
		Total:     o.Total,
		ItemCount: len(items),
		Replayed:  true,
	}, true, nil
}

func checkHeader(buyerID, sellerID string, items int) error {
	if strings.TrimSpace(buyerID) == "" || strings.TrimSpace(sellerID) == "" {
		return domain.Errorf(domain.KindInvalidRequest, "buyer and seller are required")
	}
	if items == 0 {
		return domain.Errorf(domain.KindInvalidRequest, "order must have at least one item")
	}
	return nil
}

// idempotencyScope keys are per buyer so one buyer cannot replay another's order.
func idempotencyScope(buyerID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.TrimSpace(buyerID) + ":" + key
}

func orderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", at.Format("20060102"), rand.Intn(9999)+1)
}

func (c *Coordinator) rejected(step, orderID string, err error) error {
	kind := domain.KindOf(err)
	fields := []zap.Field{zap.String("step", step), zap.String("kind", string(kind)), zap.Error(err)}
	if orderID != "" {
		fields = append(fields, zap.String("order_id", orderID))
	}
	if kind == domain.KindPersistenceFailure {
		c.log.Error("order operation failed", fields...)
	} else {
		c.log.Info("order operation rejected", fields...)
	}
	return err
}
