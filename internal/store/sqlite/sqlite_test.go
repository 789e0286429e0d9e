package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"), "agrimarket.orders")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProduct(t *testing.T, s *Store, id string, qty int) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.CreateProduct(ctx, domain.Product{
			ID:        domain.ProductID(id),
			SellerID:  "seller-1",
			Name:      "Tomatoes",
			Unit:      "kg",
			Price:     400,
			Quantity:  qty,
			Available: true,
			CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)
}

func quantity(t *testing.T, s *Store, id string) int {
	t.Helper()
	var p domain.Product
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		var err error
		p, err = t2.Product(ctx, domain.ProductID(id))
		return err
	}))
	return p.Quantity
}

func TestMigrate_IsRepeatable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, Migrate(context.Background(), s.db))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n))
	assert.Equal(t, len(migrations), n)
}

func TestReserve_IsConditional(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)

	err := s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.Reserve(ctx, "p-1", 6)
	})
	assert.ErrorIs(t, err, tx.ErrOutOfStock)
	assert.Equal(t, 5, quantity(t, s, "p-1"))

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.Reserve(ctx, "p-1", 5)
	}))
	assert.Equal(t, 0, quantity(t, s, "p-1"))
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)

	err := s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		require.NoError(t, t2.Reserve(ctx, "p-1", 3))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 5, quantity(t, s, "p-1"))
}

func TestCreateProduct_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)

	err := s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.CreateProduct(ctx, domain.Product{ID: "p-1", SellerID: "s", Name: "x", CreatedAt: time.Now()})
	})
	assert.ErrorIs(t, err, tx.ErrDuplicateKey)
}

func TestOrderRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	confirmed := created.Add(time.Hour)

	order := domain.Order{
		ID:            "o-1",
		Number:        "ORD-20261001-0001",
		BuyerID:       "buyer-1",
		SellerID:      "seller-1",
		Total:         800,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPending,
		Fulfillment:   domain.Fulfillment{Mode: domain.FulfillmentPickup, PickupDate: "2026-10-03"},
		CreatedAt:     created,
		UpdatedAt:     confirmed,
		ConfirmedAt:   &confirmed,
	}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		if err := t2.InsertOrder(ctx, order); err != nil {
			return err
		}
		return t2.InsertLineItem(ctx, domain.LineItem{ID: "li-1", OrderID: "o-1", ProductID: "p-1", Quantity: 2, UnitPrice: 400, Subtotal: 800})
	}))

	var got domain.Order
	var items []domain.LineItem
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		var err error
		if got, err = t2.Order(ctx, "o-1"); err != nil {
			return err
		}
		items, err = t2.LineItems(ctx, "o-1")
		return err
	}))

	order.ItemCount = 1
	assert.Equal(t, order, got)
	require.Len(t, items, 1)
	assert.Equal(t, domain.Money(800), items[0].Subtotal)
}

func TestListOrders_Filters(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		for i, st := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPending} {
			at := base.Add(time.Duration(i) * time.Hour)
			err := t2.InsertOrder(ctx, domain.Order{
				ID:            domain.OrderID(fmt.Sprintf("o-%d", i+1)),
				BuyerID:       "buyer-1",
				SellerID:      "seller-1",
				Status:        st,
				PaymentStatus: domain.PaymentStatusPending,
				Fulfillment:   domain.Fulfillment{Mode: domain.FulfillmentDelivery, DeliveryAddress: "x"},
				CreatedAt:     at,
				UpdatedAt:     at,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	var got []domain.Order
	from := base.Add(30 * time.Minute)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		var err error
		got, err = t2.ListOrders(ctx, domain.OrderFilter{SellerID: "seller-1", Status: domain.OrderStatusPending, CreatedFrom: &from}.Normalize())
		return err
	}))
	require.Len(t, got, 1)
	assert.Equal(t, domain.OrderID("o-3"), got[0].ID)
}

func TestIdempotencyKey_Unique(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.InsertOrder(ctx, domain.Order{ID: "o-1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending, CreatedAt: now, UpdatedAt: now})
	}))

	save := func() error {
		return s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
			return t2.SaveIdempotencyKey(ctx, "buyer-1:k", "o-1")
		})
	}
	require.NoError(t, save())
	assert.ErrorIs(t, save(), tx.ErrDuplicateKey)
}

func TestOutboxSource(t *testing.T) {
	s := openTestStore(t)
	evt := contracts.NewEvent(contracts.EventOrderCreated, "o-1", "buyer-1", time.Now(), map[string]any{"total": "8.00"})
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.AppendEvent(ctx, evt)
	}))

	recs, err := s.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, evt.EventID, recs[0].EventID)
	assert.Equal(t, "o-1", recs[0].Key)
	assert.Equal(t, "agrimarket.orders", recs[0].Topic)

	require.NoError(t, s.MarkSent(context.Background(), recs[0].ID))
	recs, err = s.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCartItems_UpsertKeepsPositionAndCascades(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)
	seedProduct(t, s, "p-2", 5)
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	var items []domain.CartItem
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		if err := t2.SetCartItem(ctx, "buyer-1", "p-1", 1, t0); err != nil {
			return err
		}
		if err := t2.SetCartItem(ctx, "buyer-1", "p-2", 2, t0.Add(time.Minute)); err != nil {
			return err
		}
		if err := t2.SetCartItem(ctx, "buyer-1", "p-1", 4, t0.Add(time.Hour)); err != nil {
			return err
		}
		var err error
		items, err = t2.CartItems(ctx, "buyer-1")
		return err
	}))
	require.Len(t, items, 2)
	assert.Equal(t, domain.ProductID("p-1"), items[0].ProductID)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, t0, items[0].AddedAt)
	assert.Equal(t, "seller-1", items[0].SellerID)
	assert.Equal(t, domain.Money(400), items[0].UnitPrice)
	assert.Equal(t, 5, items[0].Stock)

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		if err := t2.DeleteProduct(ctx, "p-2"); err != nil {
			return err
		}
		var err error
		items, err = t2.CartItems(ctx, "buyer-1")
		return err
	}))
	require.Len(t, items, 1)

	err := s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.RemoveCartItem(ctx, "buyer-1", "p-2")
	})
	assert.ErrorIs(t, err, tx.ErrNotFound)
}

func TestListProducts_SearchEscapesWildcards(t *testing.T) {
	s := openTestStore(t)
	seedProduct(t, s, "p-1", 5)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		return t2.CreateProduct(ctx, domain.Product{ID: "p-2", SellerID: "seller-1", Name: "100% rye", Available: true, Quantity: 1, CreatedAt: time.Now()})
	}))

	var got []domain.Product
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, t2 tx.Tx) error {
		var err error
		got, err = t2.ListProducts(ctx, domain.ProductFilter{Search: "0%"}.Normalize())
		return err
	}))
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProductID("p-2"), got[0].ID)
}
