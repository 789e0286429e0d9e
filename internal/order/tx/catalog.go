package tx

import (
	"context"
	"errors"
	"strings"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/pkg/logging"
)

// ownedProduct loads a product the seller may edit.
func ownedProduct(ctx context.Context, tx Tx, id domain.ProductID, sellerID string) (domain.Product, error) {
	p, err := tx.Product(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "product %s not found", id)
	}
	if err != nil {
		return domain.Product{}, domain.Persistence("load product", err)
	}
	if sellerID == "" || p.SellerID != sellerID {
		return domain.Product{}, domain.Errorf(domain.KindUnauthorized, "unauthorized: you do not own product %s", id)
	}
	return p, nil
}

// UpdateProduct applies a seller's edit. Setting Available to false takes the
// product off sale: new orders and cart additions are rejected, existing
// orders are untouched.
func (c *Coordinator) UpdateProduct(ctx context.Context, sellerID string, id domain.ProductID, u domain.ProductUpdate) (domain.Product, error) {
	var out domain.Product
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := ownedProduct(ctx, tx, id, strings.TrimSpace(sellerID))
		if err != nil {
			return err
		}
		p = u.Apply(p)
		if err := p.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return domain.Persistence("update product", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Product{}, c.rejected("update_product", "", domain.Persistence("update product", err))
	}
	logging.Log(c.log, logging.Fields{ActorID: sellerID, Step: "update_product", Status: "updated", Message: "product " + string(id) + " updated"})
	return out, nil
}

func (c *Coordinator) SetProductAvailability(ctx context.Context, sellerID string, id domain.ProductID, available bool) (domain.Product, error) {
	return c.UpdateProduct(ctx, sellerID, id, domain.ProductUpdate{Available: &available})
}

// DeleteProduct removes a product that no order references.
func (c *Coordinator) DeleteProduct(ctx context.Context, sellerID string, id domain.ProductID) error {
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := ownedProduct(ctx, tx, id, strings.TrimSpace(sellerID)); err != nil {
			return err
		}
		used, err := tx.ProductHasOrders(ctx, id)
		if err != nil {
			return domain.Persistence("check product orders", err)
		}
		if used {
			return domain.Errorf(domain.KindProductInUse, "cannot delete product %s with existing orders", id)
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return c.rejected("delete_product", "", domain.Persistence("delete product", err))
	}
	logging.Log(c.log, logging.Fields{ActorID: sellerID, Step: "delete_product", Status: "deleted", Message: "product " + string(id) + " deleted"})
	return nil
}

// ListProducts pages through the catalog, newest first.
func (c *Coordinator) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	f = f.Normalize()
	var out []domain.Product
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListProducts(ctx, f)
		return err
	})
	if err != nil {
		return nil, domain.Persistence("list products", err)
	}
	return out, nil
}
