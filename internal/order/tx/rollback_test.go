package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
)

// faultyStore wraps a real store and fails chosen Tx calls. fail receives the
// operation name and its 1-based call count within the transaction.
type faultyStore struct {
	inner tx.Store
	fail  func(op string, call int, evt contracts.Event) error
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, t tx.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, t tx.Tx) error {
		return fn(ctx, &faultyTx{Tx: t, fail: s.fail, calls: map[string]int{}})
	})
}

type faultyTx struct {
	tx.Tx
	fail  func(op string, call int, evt contracts.Event) error
	calls map[string]int
}

func (t *faultyTx) check(op string, evt contracts.Event) error {
	t.calls[op]++
	return t.fail(op, t.calls[op], evt)
}

func (t *faultyTx) Reserve(ctx context.Context, id domain.ProductID, qty int) error {
	if err := t.check("reserve", contracts.Event{}); err != nil {
		return err
	}
	return t.Tx.Reserve(ctx, id, qty)
}

func (t *faultyTx) InsertLineItem(ctx context.Context, it domain.LineItem) error {
	if err := t.check("insert_line_item", contracts.Event{}); err != nil {
		return err
	}
	return t.Tx.InsertLineItem(ctx, it)
}

func (t *faultyTx) AppendEvent(ctx context.Context, evt contracts.Event) error {
	if err := t.check("append_event", evt); err != nil {
		return err
	}
	return t.Tx.AppendEvent(ctx, evt)
}

var errDisk = errors.New("disk I/O error")

func (f *fixture) faulty(t *testing.T, fail func(op string, call int, evt contracts.Event) error) *tx.Coordinator {
	return tx.NewCoordinator(&faultyStore{inner: f.store, fail: fail}, tx.WithLogger(zaptest.NewLogger(t)))
}

func (f *fixture) assertUntouched(t *testing.T, stock map[string]int) {
	t.Helper()
	orders, err := f.coord.ListOrders(context.Background(), domain.OrderFilter{BuyerID: buyer})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.eventTypes(t))
	for id, want := range stock {
		assert.Equal(t, want, f.stock(t, id), "stock of %s", id)
	}
}

func TestCreateOrder_WriteFailuresRollBack(t *testing.T) {
	tests := []struct {
		name string
		fail func(op string, call int, evt contracts.Event) error
		want error
	}{
		{
			name: "reservation lost after validation",
			fail: func(op string, call int, _ contracts.Event) error {
				if op == "reserve" && call == 2 {
					return tx.ErrOutOfStock
				}
				return nil
			},
			want: domain.ErrInsufficientInventory,
		},
		{
			name: "reserve fails",
			fail: func(op string, call int, _ contracts.Event) error {
				if op == "reserve" && call == 2 {
					return errDisk
				}
				return nil
			},
			want: domain.ErrPersistenceFailure,
		},
		{
			name: "second line item insert fails",
			fail: func(op string, call int, _ contracts.Event) error {
				if op == "insert_line_item" && call == 2 {
					return errDisk
				}
				return nil
			},
			want: domain.ErrPersistenceFailure,
		},
		{
			name: "order.created event append fails",
			fail: func(op string, _ int, evt contracts.Event) error {
				if op == "append_event" && evt.Type == contracts.EventOrderCreated {
					return errDisk
				}
				return nil
			},
			want: domain.ErrPersistenceFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, "P1", seller, 10, true)
			f.product(t, "P2", seller, 10, true)
			in := tx.CreateOrderInput{
				BuyerID:        buyer,
				SellerID:       seller,
				Items:          []tx.ItemInput{item("P1", 4), item("P2", 3)},
				Fulfillment:    delivery,
				IdempotencyKey: "k-1",
			}

			_, err := f.faulty(t, tc.fail).CreateOrder(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			f.assertUntouched(t, map[string]int{"P1": 10, "P2": 10})

			// the key was rolled back with the order
			s, err := f.coord.CreateOrder(context.Background(), in)
			require.NoError(t, err)
			assert.False(t, s.Replayed)
			assert.Equal(t, 6, f.stock(t, "P1"))
			assert.Equal(t, 7, f.stock(t, "P2"))
		})
	}
}

func TestCreateOrder_LostReservationReportsCurrentStock(t *testing.T) {
	f := newFixture(t)
	f.product(t, "P", seller, 10, true)

	coord := f.faulty(t, func(op string, _ int, _ contracts.Event) error {
		if op == "reserve" {
			return tx.ErrOutOfStock
		}
		return nil
	})
	_, err := coord.CreateOrder(context.Background(), tx.CreateOrderInput{BuyerID: buyer, SellerID: seller, Items: []tx.ItemInput{item("P", 4)}, Fulfillment: delivery})

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindInsufficientInventory, de.Kind)
	assert.Equal(t, domain.ProductID("P"), de.ProductID)
	assert.Equal(t, 10, de.Available)
	assert.Equal(t, 4, de.Requested)
	f.assertUntouched(t, map[string]int{"P": 10})
}

func TestCheckout_LateFailureRollsBackEverySeller(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", "seller-1", 5, true)
	f.product(t, "B", "seller-2", 5, true)

	created := 0
	coord := f.faulty(t, func(op string, _ int, evt contracts.Event) error {
		if op == "append_event" && evt.Type == contracts.EventOrderCreated {
			created++
			if created == 2 {
				return errDisk
			}
		}
		return nil
	})
	_, err := coord.Checkout(context.Background(), tx.CheckoutInput{
		BuyerID: buyer,
		Items: []tx.CheckoutItem{
			{SellerID: "seller-1", ItemInput: item("A", 2)},
			{SellerID: "seller-2", ItemInput: item("B", 1)},
		},
		Fulfillment: delivery,
	})

	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
	assert.ErrorIs(t, err, errDisk)
	f.assertUntouched(t, map[string]int{"A": 5, "B": 5})
}

func TestCancelOrder_ReleaseFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.product(t, "P", seller, 10, true)
	s, err := f.coord.CreateOrder(context.Background(), tx.CreateOrderInput{BuyerID: buyer, SellerID: seller, Items: []tx.ItemInput{item("P", 4)}, Fulfillment: delivery})
	require.NoError(t, err)
	before := f.eventTypes(t)

	coord := f.faulty(t, func(op string, _ int, evt contracts.Event) error {
		if op == "append_event" && evt.Type == contracts.EventOrderCancelled {
			return errDisk
		}
		return nil
	})
	_, err = coord.CancelOrder(context.Background(), s.OrderID, seller, "storm")
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)

	d, err := f.coord.GetOrder(context.Background(), s.OrderID, buyer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, d.Order.Status)
	assert.Equal(t, 6, f.stock(t, "P"))
	assert.Equal(t, before, f.eventTypes(t))
}
