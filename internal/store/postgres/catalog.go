package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
)

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.ErrNotFound
	}
	return nil
}

func (t *pgxTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	return affected(t.tx.Exec(ctx, `UPDATE products SET name = $2, unit = $3, price_cents = $4, quantity = $5, available = $6 WHERE id = $1`,
		string(p.ID), p.Name, p.Unit, int64(p.Price), p.Quantity, p.Available))
}

func (t *pgxTx) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, string(id)))
}

func (t *pgxTx) ProductHasOrders(ctx context.Context, id domain.ProductID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)`, string(id)).Scan(&ok)
	return ok, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (t *pgxTx) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.AvailableOnly {
		where = append(where, "available AND quantity > 0")
	}
	if f.Search != "" {
		add("name ILIKE $%d", "%"+likeEscaper.Replace(f.Search)+"%")
	}

	q := `SELECT id, seller_id, name, unit, price_cents, quantity, available, created_at FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		var p domain.Product
		err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.Quantity, &p.Available, &p.CreatedAt)
		return p, err
	})
}

func (t *pgxTx) CartItems(ctx context.Context, buyerID string) ([]domain.CartItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT c.buyer_id, c.product_id, p.seller_id, p.name, p.unit, c.quantity, p.price_cents, p.available, p.quantity, c.added_at
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.buyer_id = $1 ORDER BY c.added_at, c.position`, buyerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartItem, error) {
		var it domain.CartItem
		err := row.Scan(&it.BuyerID, &it.ProductID, &it.SellerID, &it.Name, &it.Unit, &it.Quantity, &it.UnitPrice, &it.Available, &it.Stock, &it.AddedAt)
		return it, err
	})
}

func (t *pgxTx) SetCartItem(ctx context.Context, buyerID string, productID domain.ProductID, qty int, at time.Time) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO cart_items (buyer_id, product_id, quantity, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (buyer_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		buyerID, string(productID), qty, at)
	return err
}

func (t *pgxTx) RemoveCartItem(ctx context.Context, buyerID string, productID domain.ProductID) error {
	return affected(t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1 AND product_id = $2`, buyerID, string(productID)))
}

func (t *pgxTx) ClearCart(ctx context.Context, buyerID, sellerID string) error {
	if sellerID == "" {
		_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1`, buyerID)
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1 AND product_id IN (SELECT id FROM products WHERE seller_id = $2)`, buyerID, sellerID)
	return err
}
