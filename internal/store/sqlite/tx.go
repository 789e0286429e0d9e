package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/outbox"
)

type sqliteTx struct {
	tx    *sql.Tx
	topic string
}

func (t *sqliteTx) Reserve(ctx context.Context, productID domain.ProductID, qty int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`, qty, string(productID), qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tx.ErrOutOfStock
	}
	return nil
}

func (t *sqliteTx) Release(ctx context.Context, productID domain.ProductID, qty int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE products SET quantity = quantity + ? WHERE id = ?`, qty, string(productID))
	return err
}

func (t *sqliteTx) Product(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var (
		p         domain.Product
		available int
		created   string
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, seller_id, name, unit, price_cents, quantity, available, created_at FROM products WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.Unit, &p.Price, &p.Quantity, &available, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, tx.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	p.Available = available != 0
	if p.CreatedAt, err = parseTime(created); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (t *sqliteTx) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO products (id, seller_id, name, unit, price_cents, quantity, available, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.SellerID, p.Name, p.Unit, int64(p.Price), p.Quantity, boolInt(p.Available), formatTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return tx.ErrDuplicateKey
	}
	return err
}

func (t *sqliteTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO orders (
		id, number, buyer_id, seller_id, total_cents, status, payment_status,
		fulfillment_mode, delivery_address, pickup_date, special_instructions, cancel_reason,
		created_at, updated_at, confirmed_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(o.ID), o.Number, o.BuyerID, o.SellerID, int64(o.Total), string(o.Status), string(o.PaymentStatus),
		string(o.Fulfillment.Mode), o.Fulfillment.DeliveryAddress, o.Fulfillment.PickupDate, o.SpecialInstructions, o.CancelReason,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt), formatNullTime(o.ConfirmedAt), formatNullTime(o.CompletedAt))
	return err
}

func (t *sqliteTx) InsertLineItem(ctx context.Context, it domain.LineItem) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents, subtotal_cents) VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, string(it.OrderID), string(it.ProductID), it.Quantity, int64(it.UnitPrice), int64(it.Subtotal))
	return err
}

const orderColumns = `o.id, o.number, o.buyer_id, o.seller_id, o.total_cents, o.status, o.payment_status,
	o.fulfillment_mode, o.delivery_address, o.pickup_date, o.special_instructions, o.cancel_reason,
	o.created_at, o.updated_at, o.confirmed_at, o.completed_at,
	(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                   domain.Order
		created, updated    string
		confirmed, complete sql.NullString
	)
	err := row.Scan(&o.ID, &o.Number, &o.BuyerID, &o.SellerID, &o.Total, &o.Status, &o.PaymentStatus,
		&o.Fulfillment.Mode, &o.Fulfillment.DeliveryAddress, &o.Fulfillment.PickupDate, &o.SpecialInstructions, &o.CancelReason,
		&created, &updated, &confirmed, &complete, &o.ItemCount)
	if err != nil {
		return domain.Order{}, err
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return domain.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Order{}, err
	}
	if o.ConfirmedAt, err = parseNullTime(confirmed); err != nil {
		return domain.Order{}, err
	}
	if o.CompletedAt, err = parseNullTime(complete); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// Order needs no row lock: the transaction already holds the write lock.
func (t *sqliteTx) Order(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, tx.ErrNotFound
	}
	return o, err
}

func (t *sqliteTx) LineItems(ctx context.Context, orderID domain.OrderID) ([]domain.LineItem, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, order_id, product_id, quantity, unit_price_cents, subtotal_cents FROM order_items WHERE order_id = ? ORDER BY rowid`, string(orderID))
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

func (t *sqliteTx) SaveOrderState(ctx context.Context, o domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE orders SET status = ?, payment_status = ?, cancel_reason = ?, updated_at = ?, confirmed_at = ?, completed_at = ? WHERE id = ?`,
		string(o.Status), string(o.PaymentStatus), o.CancelReason, formatTime(o.UpdatedAt), formatNullTime(o.ConfirmedAt), formatNullTime(o.CompletedAt), string(o.ID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return tx.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if f.SellerID != "" {
		add("o.seller_id = ?", f.SellerID)
	}
	if f.BuyerID != "" {
		add("o.buyer_id = ?", f.BuyerID)
	}
	if f.Status != "" {
		add("o.status = ?", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("o.payment_status = ?", string(f.PaymentStatus))
	}
	if f.CreatedFrom != nil {
		add("o.created_at >= ?", formatTime(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		add("o.created_at <= ?", formatTime(*f.CreatedTo))
	}

	q := `SELECT ` + orderColumns + ` FROM orders o`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY o.created_at DESC, o.id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := t.tx.QueryContext(ctx, q, args...)
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

func (t *sqliteTx) OrderIDByIdempotencyKey(ctx context.Context, key string) (domain.OrderID, error) {
	var id domain.OrderID
	err := t.tx.QueryRowContext(ctx, `SELECT order_id FROM order_idempotency WHERE key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tx.ErrNotFound
	}
	return id, err
}

func (t *sqliteTx) SaveIdempotencyKey(ctx context.Context, key string, orderID domain.OrderID) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO order_idempotency (key, order_id) VALUES (?, ?)`, key, string(orderID))
	if isUniqueViolation(err) {
		return tx.ErrDuplicateKey
	}
	return err
}

func (t *sqliteTx) AppendEvent(ctx context.Context, evt contracts.Event) error {
	rec, err := outbox.FromEvent(t.topic, evt)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO outbox (event_id, topic, key, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.EventID, rec.Topic, rec.Key, string(rec.Payload), formatTime(rec.CreatedAt))
	return err
}

var _ tx.Tx = (*sqliteTx)(nil)

// FetchPending and MarkSent make the store an outbox.Source.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, event_id, topic, key, payload, created_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Record
	for rows.Next() {
		var (
			rec     outbox.Record
			payload string
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &payload, &created); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox SET sent_at = ? WHERE id = ?`, formatTime(timeNow()), id)
	return err
}

var _ outbox.Source = (*Store)(nil)
