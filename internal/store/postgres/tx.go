package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/outbox"
)

type pgxTx struct {
	tx    pgx.Tx
	topic string
}

func (t *pgxTx) Reserve(ctx context.Context, productID domain.ProductID, qty int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET quantity = quantity - $2 WHERE id = $1 AND quantity >= $2`, string(productID), qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.ErrOutOfStock
	}
	return nil
}

func (t *pgxTx) Release(ctx context.Context, productID domain.ProductID, qty int) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET quantity = quantity + $2 WHERE id = $1`, string(productID), qty)
	return err
}

func (t *pgxTx) Product(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRow(ctx, `SELECT id, seller_id, name, unit, price_cents, quantity, available, created_at FROM products WHERE id = $1`, string(id)).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.Quantity, &p.Available, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, notFound(err)
	}
	return p, nil
}

func (t *pgxTx) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO products (id, seller_id, name, unit, price_cents, quantity, available, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(p.ID), p.SellerID, p.Name, p.Unit, int64(p.Price), p.Quantity, p.Available, p.CreatedAt)
	if isUniqueViolation(err) {
		return tx.ErrDuplicateKey
	}
	return err
}

func (t *pgxTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO orders (
		id, number, buyer_id, seller_id, total_cents, status, payment_status,
		fulfillment_mode, delivery_address, pickup_date, special_instructions, cancel_reason,
		created_at, updated_at, confirmed_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		string(o.ID), o.Number, o.BuyerID, o.SellerID, int64(o.Total), string(o.Status), string(o.PaymentStatus),
		string(o.Fulfillment.Mode), o.Fulfillment.DeliveryAddress, o.Fulfillment.PickupDate, o.SpecialInstructions, o.CancelReason,
		o.CreatedAt, o.UpdatedAt, o.ConfirmedAt, o.CompletedAt)
	return err
}

func (t *pgxTx) InsertLineItem(ctx context.Context, it domain.LineItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents, subtotal_cents) VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, string(it.OrderID), string(it.ProductID), it.Quantity, int64(it.UnitPrice), int64(it.Subtotal))
	return err
}

const orderColumns = `o.id, o.number, o.buyer_id, o.seller_id, o.total_cents, o.status, o.payment_status,
	o.fulfillment_mode, o.delivery_address, o.pickup_date, o.special_instructions, o.cancel_reason,
	o.created_at, o.updated_at, o.confirmed_at, o.completed_at,
	(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id)`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Number, &o.BuyerID, &o.SellerID, &o.Total, &o.Status, &o.PaymentStatus,
		&o.Fulfillment.Mode, &o.Fulfillment.DeliveryAddress, &o.Fulfillment.PickupDate, &o.SpecialInstructions, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.CompletedAt, &o.ItemCount)
	return o, err
}

// Order locks the row so concurrent cancels and status changes serialize.
func (t *pgxTx) Order(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE OF o`, string(id)))
	if err != nil {
		return domain.Order{}, notFound(err)
	}
	return o, nil
}

func (t *pgxTx) LineItems(ctx context.Context, orderID domain.OrderID) ([]domain.LineItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price_cents, subtotal_cents FROM order_items WHERE order_id = $1 ORDER BY position`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LineItem
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *pgxTx) SaveOrderState(ctx context.Context, o domain.Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, payment_status = $3, cancel_reason = $4, updated_at = $5, confirmed_at = $6, completed_at = $7 WHERE id = $1`,
		string(o.ID), string(o.Status), string(o.PaymentStatus), o.CancelReason, o.UpdatedAt, o.ConfirmedAt, o.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.ErrNotFound
	}
	return nil
}

func (t *pgxTx) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SellerID != "" {
		add("o.seller_id = $%d", f.SellerID)
	}
	if f.BuyerID != "" {
		add("o.buyer_id = $%d", f.BuyerID)
	}
	if f.Status != "" {
		add("o.status = $%d", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("o.payment_status = $%d", string(f.PaymentStatus))
	}
	if f.CreatedFrom != nil {
		add("o.created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("o.created_at <= $%d", *f.CreatedTo)
	}

	q := `SELECT ` + orderColumns + ` FROM orders o`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY o.created_at DESC, o.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *pgxTx) OrderIDByIdempotencyKey(ctx context.Context, key string) (domain.OrderID, error) {
	var id domain.OrderID
	err := t.tx.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE key = $1`, key).Scan(&id)
	return id, notFound(err)
}

func (t *pgxTx) SaveIdempotencyKey(ctx context.Context, key string, orderID domain.OrderID) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_idempotency (key, order_id) VALUES ($1, $2)`, key, string(orderID))
	if isUniqueViolation(err) {
		return tx.ErrDuplicateKey
	}
	return err
}

func (t *pgxTx) AppendEvent(ctx context.Context, evt contracts.Event) error {
	rec, err := outbox.FromEvent(t.topic, evt)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, t.tx, rec)
}

var _ tx.Tx = (*pgxTx)(nil)
