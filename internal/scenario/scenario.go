// Package scenario drives end-to-end order flows against a running API.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/agrimarket-go/internal/httpapi"
	"github.com/nazeru/agrimarket-go/pkg/apiclient"
)

const (
	Seller = "cli-seller"
	Buyer  = "cli-buyer"
)

type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, c *apiclient.Client) (string, error)
}

func All() []Scenario {
	return []Scenario{
		{"lifecycle", "Place, confirm and complete an order", Lifecycle},
		{"cancel", "Cancel an order and check stock is restored", Cancel},
		{"oversell", "Race 20 buyers for 5 units", Oversell},
		{"replay", "Resend an order with the same idempotency key", Replay},
		{"cart", "Fill a cart, pull one product off sale, check out the rest", Cart},
	}
}

func Find(name string) (Scenario, bool) {
	for _, s := range All() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

var price = decimal.RequireFromString("2.50")

func seed(ctx context.Context, c *apiclient.Client, qty int) (string, error) {
	p, err := c.CreateProduct(ctx, Seller, httpapi.CreateProductRequest{
		ID:       "sku-" + uuid.NewString()[:8],
		Name:     "Heirloom tomatoes",
		Unit:     "kg",
		Price:    price,
		Quantity: qty,
	})
	if err != nil {
		return "", fmt.Errorf("seed product: %w", err)
	}
	return p.ID, nil
}

func order(productID string, qty int) httpapi.CreateOrderRequest {
	unit := price
	return httpapi.CreateOrderRequest{
		SellerID: Seller,
		Items:    []httpapi.ItemRequest{{ProductID: productID, Quantity: qty, UnitPrice: &unit}},
		FulfillmentRequest: httpapi.FulfillmentRequest{
			FulfillmentMode: "Delivery",
			DeliveryAddress: "1 Orchard Lane",
		},
	}
}

func Lifecycle(ctx context.Context, c *apiclient.Client) (string, error) {
	pid, err := seed(ctx, c, 10)
	if err != nil {
		return "", err
	}
	s, _, err := c.CreateOrder(ctx, Buyer, "", order(pid, 4))
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	for _, st := range []string{"Confirmed", "Completed"} {
		if err := c.UpdateStatus(ctx, Seller, s.OrderID, st); err != nil {
			return "", fmt.Errorf("move to %s: %w", st, err)
		}
	}
	o, err := c.Order(ctx, Buyer, s.OrderID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s is %s, total %s", o.OrderNumber, o.Status, o.Total), nil
}

func Cancel(ctx context.Context, c *apiclient.Client) (string, error) {
	pid, err := seed(ctx, c, 10)
	if err != nil {
		return "", err
	}
	s, _, err := c.CreateOrder(ctx, Buyer, "", order(pid, 6))
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	if err := c.Cancel(ctx, Seller, s.OrderID, "crop failure"); err != nil {
		return "", fmt.Errorf("cancel: %w", err)
	}
	p, err := c.Product(ctx, pid)
	if err != nil {
		return "", err
	}
	if p.Quantity != 10 {
		return "", fmt.Errorf("stock after cancel is %d, want 10", p.Quantity)
	}
	return fmt.Sprintf("order %s cancelled, stock back to %d", s.OrderNumber, p.Quantity), nil
}

// Oversell places one-unit orders concurrently against a product with less
// stock than buyers and checks that no unit is sold twice.
func Oversell(ctx context.Context, c *apiclient.Client) (string, error) {
	const stock, buyers = 5, 20
	pid, err := seed(ctx, c, stock)
	if err != nil {
		return "", err
	}

	var (
		mu       sync.Mutex
		created  int
		rejected int
		wg       sync.WaitGroup
	)
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, code, err := c.CreateOrder(ctx, fmt.Sprintf("buyer-%02d", i), "", order(pid, 1))
			var se *apiclient.StatusError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.As(err, &se) && code == http.StatusConflict:
				rejected++
			default:
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return "", err
	}

	p, err := c.Product(ctx, pid)
	if err != nil {
		return "", err
	}
	if created != stock || p.Quantity != 0 {
		return "", fmt.Errorf("oversold: %d orders created, %d units left", created, p.Quantity)
	}
	return fmt.Sprintf("%d created, %d rejected, stock %d", created, rejected, p.Quantity), nil
}

func Replay(ctx context.Context, c *apiclient.Client) (string, error) {
	pid, err := seed(ctx, c, 10)
	if err != nil {
		return "", err
	}
	key := uuid.NewString()
	first, _, err := c.CreateOrder(ctx, Buyer, key, order(pid, 2))
	if err != nil {
		return "", err
	}
	second, code, err := c.CreateOrder(ctx, Buyer, key, order(pid, 2))
	if err != nil {
		return "", err
	}
	if second.OrderID != first.OrderID || code != http.StatusOK {
		return "", fmt.Errorf("replay returned order %s with status %d", second.OrderID, code)
	}
	p, err := c.Product(ctx, pid)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("replayed %s, stock %d", first.OrderNumber, p.Quantity), nil
}

// Cart checks out a two-product cart after one product is taken off sale and
// removed, so only the remaining product is ordered.
func Cart(ctx context.Context, c *apiclient.Client) (string, error) {
	buyer := Buyer + "-" + uuid.NewString()[:8]
	keep, err := seed(ctx, c, 10)
	if err != nil {
		return "", err
	}
	drop, err := seed(ctx, c, 10)
	if err != nil {
		return "", err
	}
	for _, pid := range []string{keep, drop} {
		if _, err := c.AddToCart(ctx, buyer, pid, 3); err != nil {
			return "", fmt.Errorf("add %s to cart: %w", pid, err)
		}
	}
	if _, err := c.SetAvailability(ctx, Seller, drop, false); err != nil {
		return "", fmt.Errorf("take %s off sale: %w", drop, err)
	}

	checkout := httpapi.CartCheckoutRequest{FulfillmentRequest: httpapi.FulfillmentRequest{FulfillmentMode: "Delivery", DeliveryAddress: "1 Orchard Lane"}}
	_, err = c.CheckoutCart(ctx, buyer, checkout)
	var se *apiclient.StatusError
	if !errors.As(err, &se) || se.Body.Kind != "ProductUnavailable" {
		return "", fmt.Errorf("checkout with an unavailable product: got %v, want ProductUnavailable", err)
	}
	if _, err := c.Do(ctx, apiclient.Call{Method: http.MethodDelete, Path: "/cart/items/" + drop, Actor: buyer}, nil); err != nil {
		return "", fmt.Errorf("remove %s: %w", drop, err)
	}

	orders, err := c.CheckoutCart(ctx, buyer, checkout)
	if err != nil {
		return "", fmt.Errorf("checkout: %w", err)
	}
	if len(orders) != 1 {
		return "", fmt.Errorf("checkout created %d orders, want 1", len(orders))
	}
	cart, err := c.Cart(ctx, buyer)
	if err != nil {
		return "", err
	}
	if cart.Count != 0 {
		return "", fmt.Errorf("cart still holds %d items after checkout", cart.Count)
	}
	p, err := c.Product(ctx, keep)
	if err != nil {
		return "", err
	}
	if p.Quantity != 7 {
		return "", fmt.Errorf("stock after checkout is %d, want 7", p.Quantity)
	}
	return fmt.Sprintf("order %s total %s, cart empty", orders[0].OrderNumber, orders[0].Total), nil
}
