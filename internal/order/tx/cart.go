package tx

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
)

func cartInTx(ctx context.Context, tx Tx, buyerID string) (domain.Cart, error) {
	items, err := tx.CartItems(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, domain.Persistence("load cart", err)
	}
	return domain.GroupCart(buyerID, items)
}

func cartQuantity(items []domain.CartItem, id domain.ProductID) int {
	for _, it := range items {
		if it.ProductID == id {
			return it.Quantity
		}
	}
	return 0
}

func requireBuyer(buyerID string) (string, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return "", domain.Errorf(domain.KindInvalidRequest, "buyer is required")
	}
	return buyerID, nil
}

// Cart returns the buyer's cart grouped by seller.
func (c *Coordinator) Cart(ctx context.Context, buyerID string) (domain.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return domain.Cart{}, err
	}
	var out domain.Cart
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = cartInTx(ctx, tx, buyerID)
		return err
	})
	if err != nil {
		return domain.Cart{}, domain.Persistence("get cart", err)
	}
	return out, nil
}

// AddToCart adds qty units on top of what the cart already holds. The
// combined quantity must be in stock.
func (c *Coordinator) AddToCart(ctx context.Context, buyerID string, productID domain.ProductID, qty int) (domain.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return domain.Cart{}, c.rejected("add_to_cart", "", err)
	}
	if qty <= 0 {
		return domain.Cart{}, c.rejected("add_to_cart", "", domain.Errorf(domain.KindInvalidItem, "quantity must be greater than 0"))
	}

	var out domain.Cart
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.Product(ctx, productID)
		if errors.Is(err, ErrNotFound) {
			return domain.Errorf(domain.KindProductNotFound, "product %s not found", productID)
		}
		if err != nil {
			return domain.Persistence("load product", err)
		}
		if !p.Available {
			return domain.Errorf(domain.KindProductUnavailable, "product %s is not available", p.Name)
		}
		items, err := tx.CartItems(ctx, buyerID)
		if err != nil {
			return domain.Persistence("load cart", err)
		}
		want := cartQuantity(items, productID) + qty
		if p.Quantity < want {
			return domain.InsufficientInventory(p, want)
		}
		if err := tx.SetCartItem(ctx, buyerID, productID, want, c.now()); err != nil {
			return domain.Persistence("save cart item", err)
		}
		out, err = cartInTx(ctx, tx, buyerID)
		return err
	})
	if err != nil {
		return domain.Cart{}, c.rejected("add_to_cart", "", domain.Persistence("add to cart", err))
	}
	return out, nil
}

// UpdateCartItem sets the quantity of a product already in the cart. Zero
// removes it.
func (c *Coordinator) UpdateCartItem(ctx context.Context, buyerID string, productID domain.ProductID, qty int) (domain.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return domain.Cart{}, c.rejected("update_cart_item", "", err)
	}
	if qty < 0 {
		return domain.Cart{}, c.rejected("update_cart_item", "", domain.Errorf(domain.KindInvalidItem, "quantity must not be negative"))
	}
	if qty == 0 {
		return c.RemoveFromCart(ctx, buyerID, productID)
	}

	var out domain.Cart
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		items, err := tx.CartItems(ctx, buyerID)
		if err != nil {
			return domain.Persistence("load cart", err)
		}
		if cartQuantity(items, productID) == 0 {
			return domain.Errorf(domain.KindProductNotFound, "product %s is not in the cart", productID)
		}
		p, err := tx.Product(ctx, productID)
		if err != nil {
			return domain.Persistence("load product", err)
		}
		if p.Quantity < qty {
			return domain.InsufficientInventory(p, qty)
		}
		if err := tx.SetCartItem(ctx, buyerID, productID, qty, c.now()); err != nil {
			return domain.Persistence("save cart item", err)
		}
		out, err = cartInTx(ctx, tx, buyerID)
		return err
	})
	if err != nil {
		return domain.Cart{}, c.rejected("update_cart_item", "", domain.Persistence("update cart item", err))
	}
	return out, nil
}

func (c *Coordinator) RemoveFromCart(ctx context.Context, buyerID string, productID domain.ProductID) (domain.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return domain.Cart{}, c.rejected("remove_from_cart", "", err)
	}
	var out domain.Cart
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		err := tx.RemoveCartItem(ctx, buyerID, productID)
		if errors.Is(err, ErrNotFound) {
			return domain.Errorf(domain.KindProductNotFound, "product %s is not in the cart", productID)
		}
		if err != nil {
			return domain.Persistence("remove cart item", err)
		}
		out, err = cartInTx(ctx, tx, buyerID)
		return err
	})
	if err != nil {
		return domain.Cart{}, c.rejected("remove_from_cart", "", domain.Persistence("remove from cart", err))
	}
	return out, nil
}

// ClearCart empties the cart, or only sellerID's items when it is set.
func (c *Coordinator) ClearCart(ctx context.Context, buyerID, sellerID string) error {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return c.rejected("clear_cart", "", err)
	}
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClearCart(ctx, buyerID, strings.TrimSpace(sellerID))
	})
	if err != nil {
		return c.rejected("clear_cart", "", domain.Persistence("clear cart", err))
	}
	return nil
}

// CheckoutCart turns the stored cart into one order per seller at current
// catalog prices and removes the ordered items from the cart, all in one
// transaction.
func (c *Coordinator) CheckoutCart(ctx context.Context, in CartCheckoutInput) ([]OrderSummary, error) {
	buyerID, err := requireBuyer(in.BuyerID)
	if err != nil {
		return nil, c.rejected("checkout_cart", "", err)
	}
	if err := in.Fulfillment.Validate(); err != nil {
		return nil, c.rejected("checkout_cart", "", err)
	}
	sellerID := strings.TrimSpace(in.SellerID)

	var out []OrderSummary
	err = c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cart, err := cartInTx(ctx, tx, buyerID)
		if err != nil {
			return err
		}
		var sellers []string
		bySeller := map[string][]ItemInput{}
		for _, g := range cart.Groups {
			if sellerID != "" && g.SellerID != sellerID {
				continue
			}
			sellers = append(sellers, g.SellerID)
			for _, it := range g.Items {
				price := it.UnitPrice
				bySeller[g.SellerID] = append(bySeller[g.SellerID], ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: &price})
			}
		}
		if len(sellers) == 0 {
			return domain.Errorf(domain.KindInvalidRequest, "cart is empty")
		}

		out, err = c.checkoutInTx(ctx, tx, sellers, bySeller, orderDraft{
			buyerID:      buyerID,
			fulfillment:  in.Fulfillment.Normalized(),
			instructions: strings.TrimSpace(in.SpecialInstructions),
		})
		if err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, buyerID, sellerID); err != nil {
			return domain.Persistence("clear cart", err)
		}
		return nil
	})
	if err != nil {
		return nil, c.rejected("checkout_cart", "", domain.Persistence("checkout cart", err))
	}
	c.log.Info("cart checked out", zap.String("actor_id", buyerID), zap.Int("orders", len(out)))
	return out, nil
}
