package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Grid(t *testing.T) {
	legal := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusPending}:     true,
		{OrderStatusPending, OrderStatusConfirmed}:   true,
		{OrderStatusPending, OrderStatusCancelled}:   true,
		{OrderStatusConfirmed, OrderStatusConfirmed}: true,
		{OrderStatusConfirmed, OrderStatusCompleted}: true,
		{OrderStatusConfirmed, OrderStatusCancelled}: true,
		{OrderStatusCompleted, OrderStatusCompleted}: true,
		{OrderStatusCancelled, OrderStatusCancelled}: true,
	}

	for _, from := range orderStatuses {
		for _, to := range orderStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				want := legal[[2]OrderStatus{from, to}]
				assert.Equal(t, want, CanTransition(from, to))

				err := CheckTransition(from, to)
				if want {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrIllegalTransition)

				var de *Error
				require.True(t, errors.As(err, &de))
				assert.Equal(t, AllowedTransitions(from), de.Allowed)
			})
		}
	}
}

func TestCheckTransition_ReportsAllowedTargets(t *testing.T) {
	err := CheckTransition(OrderStatusConfirmed, OrderStatusPending)

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []OrderStatus{OrderStatusCompleted, OrderStatusCancelled}, de.Allowed)
	assert.Contains(t, de.Error(), "allowed transitions: Completed, Cancelled")

	err = CheckTransition(OrderStatusCompleted, OrderStatusCancelled)
	require.True(t, errors.As(err, &de))
	assert.Empty(t, de.Allowed)
	assert.Contains(t, de.Error(), "allowed transitions: none")
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(OrderStatusPending)
	got[0] = OrderStatusCompleted

	assert.Equal(t, []OrderStatus{OrderStatusConfirmed, OrderStatusCancelled}, AllowedTransitions(OrderStatusPending))
}

func TestTerminal(t *testing.T) {
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusConfirmed.Terminal())
	assert.True(t, OrderStatusCompleted.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatus("Shipped").Terminal())
}

func TestParseOrderStatus_RejectsNonCanonicalCasing(t *testing.T) {
	s, err := ParseOrderStatus("Confirmed")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, s)

	for _, raw := range []string{"confirmed", "CONFIRMED", "", "processing", " Confirmed"} {
		_, err := ParseOrderStatus(raw)
		assert.ErrorIs(t, err, ErrInvalidStatus, raw)
	}
}

func TestParsePaymentStatus(t *testing.T) {
	for _, raw := range []string{"Pending", "Paid", "Failed"} {
		s, err := ParsePaymentStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatus(raw), s)
	}

	for _, raw := range []string{"paid", "unpaid", "refunded", ""} {
		_, err := ParsePaymentStatus(raw)
		assert.ErrorIs(t, err, ErrInvalidPaymentStatus, raw)
	}
}

func TestFulfillmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Fulfillment
		wantErr bool
	}{
		{name: "delivery with address", in: Fulfillment{Mode: FulfillmentDelivery, DeliveryAddress: "12 Farm Rd"}},
		{name: "delivery without address", in: Fulfillment{Mode: FulfillmentDelivery}, wantErr: true},
		{name: "delivery blank address", in: Fulfillment{Mode: FulfillmentDelivery, DeliveryAddress: "   "}, wantErr: true},
		{name: "pickup with date", in: Fulfillment{Mode: FulfillmentPickup, PickupDate: "2026-10-20"}},
		{name: "pickup without date", in: Fulfillment{Mode: FulfillmentPickup}, wantErr: true},
		{name: "pickup bad date", in: Fulfillment{Mode: FulfillmentPickup, PickupDate: "20/10/2026"}, wantErr: true},
		{name: "unknown mode", in: Fulfillment{Mode: "Drone", DeliveryAddress: "x"}, wantErr: true},
		{name: "lowercase mode", in: Fulfillment{Mode: "delivery", DeliveryAddress: "x"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFulfillment)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFulfillmentNormalized_DropsForeignField(t *testing.T) {
	f := Fulfillment{Mode: FulfillmentPickup, DeliveryAddress: "ignored", PickupDate: " 2026-10-20 "}.Normalized()
	assert.Equal(t, Fulfillment{Mode: FulfillmentPickup, PickupDate: "2026-10-20"}, f)
}

func TestMoney(t *testing.T) {
	m, err := ParseMoney("4.00")
	require.NoError(t, err)
	assert.Equal(t, Money(400), m)
	sub, ok := m.Mul(3)
	require.True(t, ok)
	assert.Equal(t, "12.00", sub.String())

	m, err = MoneyFromDecimal(decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, Money(50), m)

	_, err = ParseMoney("1.005")
	assert.Error(t, err)
	_, err = ParseMoney("-1")
	assert.Error(t, err)
	_, err = ParseMoney("abc")
	assert.Error(t, err)
}

func TestMoney_RejectsOverflow(t *testing.T) {
	_, err := MoneyFromDecimal(decimal.RequireFromString("184467440737095516.16"))
	assert.EqualError(t, err, "amount 184467440737095516.16 is too large")

	m, err := MoneyFromDecimal(decimal.RequireFromString("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, Money(math.MaxInt64), m)

	_, ok := Money(math.MaxInt64).Mul(2)
	assert.False(t, ok)
	_, ok = Money(math.MaxInt64/2 + 1).Mul(2)
	assert.False(t, ok)
	half, ok := Money(math.MaxInt64 / 2).Mul(2)
	require.True(t, ok)
	assert.Equal(t, Money(math.MaxInt64-1), half)
	zero, ok := Money(math.MaxInt64).Mul(0)
	require.True(t, ok)
	assert.Equal(t, Money(0), zero)

	_, ok = Money(math.MaxInt64).Add(1)
	assert.False(t, ok)
	sum, ok := Money(math.MaxInt64 - 1).Add(1)
	require.True(t, ok)
	assert.Equal(t, Money(math.MaxInt64), sum)
}

func TestErrorMatchingByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Errorf(KindOrderNotFound, "order %s not found", "o-1"))

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindOrderNotFound, KindOf(err))
	assert.Equal(t, KindPersistenceFailure, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestPersistence_WrapsOnlyUnkindedErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("insert order", cause)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert order: connection reset", err.Error())

	kinded := Errorf(KindProductUnavailable, "gone")
	assert.Same(t, kinded, Persistence("x", kinded))
	assert.Nil(t, Persistence("x", nil))
}

func TestInsufficientInventory_CarriesNumbers(t *testing.T) {
	err := InsufficientInventory(Product{ID: "p-1", Name: "Tomatoes", Quantity: 7}, 8)

	assert.Equal(t, 7, err.Available)
	assert.Equal(t, 8, err.Requested)
	assert.Equal(t, ProductID("p-1"), err.ProductID)
	assert.Equal(t, "insufficient inventory for Tomatoes: available 7, requested 8", err.Error())
}

func TestTimeline(t *testing.T) {
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	confirmed := created.Add(time.Hour)
	completed := created.Add(2 * time.Hour)

	o := Order{
		ID:            "o-1",
		Status:        OrderStatusCompleted,
		PaymentStatus: PaymentStatusPaid,
		CreatedAt:     created,
		UpdatedAt:     completed,
		ConfirmedAt:   &confirmed,
		CompletedAt:   &completed,
	}

	var types []string
	for _, e := range Timeline(o) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"created", "confirmed", "payment", "completed"}, types)

	cancelled := Order{Status: OrderStatusCancelled, CancelReason: "buyer changed mind", CreatedAt: created, UpdatedAt: confirmed}
	tl := Timeline(cancelled)
	require.Len(t, tl, 2)
	assert.Equal(t, "Order was cancelled: buyer changed mind", tl[1].Description)
}

func TestValidateForProcessing(t *testing.T) {
	o := Order{ID: "o-1", Status: OrderStatusPending, Fulfillment: Fulfillment{Mode: FulfillmentDelivery, DeliveryAddress: "12 Farm Rd"}}
	items := []LineItem{{ProductID: "p-1", Quantity: 2, UnitPrice: 400}}

	v := ValidateForProcessing(o, items)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Problems)

	o.Fulfillment = Fulfillment{Mode: FulfillmentPickup}
	v = ValidateForProcessing(o, nil)
	assert.False(t, v.Valid)
	assert.Equal(t, []string{"order has no items", "pickup date is required"}, v.Problems)
}

func TestOrderFilterNormalize(t *testing.T) {
	assert.Equal(t, DefaultListLimit, OrderFilter{}.Normalize().Limit)
	assert.Equal(t, MaxListLimit, OrderFilter{Limit: 1000}.Normalize().Limit)
	assert.Equal(t, 0, OrderFilter{Offset: -5}.Normalize().Offset)
}

func TestGroupCart(t *testing.T) {
	items := []CartItem{
		{ProductID: "a1", SellerID: "s-1", Quantity: 2, UnitPrice: 400},
		{ProductID: "b1", SellerID: "s-2", Quantity: 1, UnitPrice: 950},
		{ProductID: "a2", SellerID: "s-1", Quantity: 1, UnitPrice: 125},
	}
	cart, err := GroupCart("buyer-1", items)
	require.NoError(t, err)
	require.Len(t, cart.Groups, 2)
	assert.Equal(t, "s-1", cart.Groups[0].SellerID)
	assert.Equal(t, Money(925), cart.Groups[0].Subtotal)
	assert.Equal(t, Money(950), cart.Groups[1].Subtotal)
	assert.Equal(t, Money(1875), cart.Total)
	assert.Equal(t, 3, cart.Count)
	assert.Equal(t, Money(800), cart.Groups[0].Items[0].Subtotal())

	_, err = GroupCart("buyer-1", []CartItem{{ProductID: "x", SellerID: "s-1", Quantity: 2, UnitPrice: math.MaxInt64}})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestProductUpdate_Apply(t *testing.T) {
	p := Product{ID: "p", SellerID: "s", Name: "Kale", Unit: "bunch", Price: 300, Quantity: 4, Available: true}
	off := false
	price := Money(350)
	got := ProductUpdate{Price: &price, Available: &off}.Apply(p)
	assert.Equal(t, Money(350), got.Price)
	assert.False(t, got.Available)
	assert.Equal(t, "Kale", got.Name)
	assert.Equal(t, 4, got.Quantity)
	assert.NoError(t, got.Validate())

	neg := -2
	assert.ErrorIs(t, ProductUpdate{Quantity: &neg}.Apply(p).Validate(), ErrInvalidRequest)
}
