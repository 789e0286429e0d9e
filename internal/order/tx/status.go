package tx

import (
	"context"

	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/logging"
)

// UpdateStatus moves an order along the status graph. Moving to Cancelled goes
// through the same path as CancelOrder, so reserved stock is always released.
// Requesting the current status is a no-op.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID domain.OrderID, sellerID, rawStatus string) (StatusChange, error) {
	to, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return StatusChange{}, c.rejected("update_status", string(orderID), err)
	}

	var out StatusChange
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := loadOwned(ctx, tx, orderID, sellerID)
		if err != nil {
			return err
		}
		out = StatusChange{From: o.Status, To: to, Order: o}
		if err := domain.CheckTransition(o.Status, to); err != nil {
			return err
		}
		if o.Status == to {
			return nil
		}

		if to == domain.OrderStatusCancelled {
			out.Order, err = c.cancelInTx(ctx, tx, o, sellerID, "")
			return err
		}

		now := c.now()
		o.Status = to
		o.UpdatedAt = now
		typ := contracts.EventOrderConfirmed
		switch to {
		case domain.OrderStatusConfirmed:
			o.ConfirmedAt = &now
		case domain.OrderStatusCompleted:
			o.CompletedAt = &now
			typ = contracts.EventOrderCompleted
		}
		if err := tx.SaveOrderState(ctx, o); err != nil {
			return domain.Persistence("save order", err)
		}
		evt := contracts.NewEvent(typ, string(o.ID), sellerID, now, map[string]any{
			"order_number": o.Number,
			"buyer_id":     o.BuyerID,
			"seller_id":    o.SellerID,
			"from_status":  string(out.From),
			"to_status":    string(to),
		})
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return domain.Persistence("append event", err)
		}
		out.Order = o
		return nil
	})
	if err != nil {
		return StatusChange{}, c.rejected("update_status", string(orderID), domain.Persistence("update status", err))
	}

	logging.Log(c.log, logging.Fields{
		OrderID: string(orderID),
		ActorID: sellerID,
		Step:    "update_status",
		Status:  string(out.To),
		Message: "order status updated",
	})
	return out, nil
}

// UpdatePaymentStatus writes any valid payment status; payment has no graph.
func (c *Coordinator) UpdatePaymentStatus(ctx context.Context, orderID domain.OrderID, sellerID, rawStatus string) (domain.Order, error) {
	ps, err := domain.ParsePaymentStatus(rawStatus)
	if err != nil {
		return domain.Order{}, c.rejected("update_payment_status", string(orderID), err)
	}

	var out domain.Order
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := loadOwned(ctx, tx, orderID, sellerID)
		if err != nil {
			return err
		}
		from := o.PaymentStatus
		now := c.now()
		o.PaymentStatus = ps
		o.UpdatedAt = now
		if err := tx.SaveOrderState(ctx, o); err != nil {
			return domain.Persistence("save order", err)
		}
		evt := contracts.NewEvent(contracts.EventOrderPaymentUpdated, string(o.ID), sellerID, now, map[string]any{
			"order_number": o.Number,
			"buyer_id":     o.BuyerID,
			"from_payment": string(from),
			"to_payment":   string(ps),
		})
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return domain.Persistence("append event", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, c.rejected("update_payment_status", string(orderID), domain.Persistence("update payment status", err))
	}
	c.log.Info("payment status updated", zap.String("order_id", string(orderID)), zap.String("payment_status", string(ps)))
	return out, nil
}
