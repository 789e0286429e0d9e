package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tx.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	return affected(t.tx.ExecContext(ctx, `UPDATE products SET name = ?, unit = ?, price_cents = ?, quantity = ?, available = ? WHERE id = ?`,
		p.Name, p.Unit, int64(p.Price), p.Quantity, boolInt(p.Available), string(p.ID)))
}

func (t *sqliteTx) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	return affected(t.tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, string(id)))
}

func (t *sqliteTx) ProductHasOrders(ctx context.Context, id domain.ProductID) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = ?)`, string(id)).Scan(&n)
	return n == 1, err
}

func (t *sqliteTx) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.SellerID != "" {
		where = append(where, "seller_id = ?")
		args = append(args, f.SellerID)
	}
	if f.AvailableOnly {
		where = append(where, "available = 1 AND quantity > 0")
	}
	if f.Search != "" {
		where = append(where, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
	}

	q := `SELECT id, seller_id, name, unit, price_cents, quantity, available, created_at FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			p         domain.Product
			available int
			created   string
		)
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.Quantity, &available, &created); err != nil {
			return nil, err
		}
		p.Available = available != 0
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (t *sqliteTx) CartItems(ctx context.Context, buyerID string) ([]domain.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT c.buyer_id, c.product_id, p.seller_id, p.name, p.unit, c.quantity, p.price_cents, p.available, p.quantity, c.added_at
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.buyer_id = ? ORDER BY c.added_at, c.rowid`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CartItem
	for rows.Next() {
		var (
			it        domain.CartItem
			available int
			added     string
		)
		if err := rows.Scan(&it.BuyerID, &it.ProductID, &it.SellerID, &it.Name, &it.Unit, &it.Quantity, &it.UnitPrice, &available, &it.Stock, &added); err != nil {
			return nil, err
		}
		it.Available = available != 0
		if it.AddedAt, err = parseTime(added); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *sqliteTx) SetCartItem(ctx context.Context, buyerID string, productID domain.ProductID, qty int, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO cart_items (buyer_id, product_id, quantity, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (buyer_id, product_id) DO UPDATE SET quantity = excluded.quantity`,
		buyerID, string(productID), qty, formatTime(at))
	return err
}

func (t *sqliteTx) RemoveCartItem(ctx context.Context, buyerID string, productID domain.ProductID) error {
	return affected(t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE buyer_id = ? AND product_id = ?`, buyerID, string(productID)))
}

func (t *sqliteTx) ClearCart(ctx context.Context, buyerID, sellerID string) error {
	if sellerID == "" {
		_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE buyer_id = ?`, buyerID)
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE buyer_id = ? AND product_id IN (SELECT id FROM products WHERE seller_id = ?)`, buyerID, sellerID)
	return err
}
