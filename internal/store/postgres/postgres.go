// Package postgres is the production order store on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/outbox"
)

type Store struct {
	pool  *pgxpool.Pool
	topic string
}

func Open(ctx context.Context, connString, topic string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, topic: topic}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool is shared with the notification consumer.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		seller_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		unit        TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL DEFAULT 0,
		quantity    INTEGER NOT NULL CHECK (quantity >= 0),
		available   BOOLEAN NOT NULL DEFAULT true,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                   TEXT PRIMARY KEY,
		number               TEXT NOT NULL,
		buyer_id             TEXT NOT NULL,
		seller_id            TEXT NOT NULL,
		total_cents          BIGINT NOT NULL,
		status               TEXT NOT NULL,
		payment_status       TEXT NOT NULL,
		fulfillment_mode     TEXT NOT NULL,
		delivery_address     TEXT NOT NULL DEFAULT '',
		pickup_date          TEXT NOT NULL DEFAULT '',
		special_instructions TEXT NOT NULL DEFAULT '',
		cancel_reason        TEXT NOT NULL DEFAULT '',
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		confirmed_at         TIMESTAMPTZ,
		completed_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id               TEXT PRIMARY KEY,
		order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id       TEXT NOT NULL,
		quantity         INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL,
		subtotal_cents   BIGINT NOT NULL,
		position         SERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE TABLE IF NOT EXISTS order_idempotency (
		key      TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id         BIGSERIAL PRIMARY KEY,
		event_id   TEXT NOT NULL UNIQUE,
		topic      TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE sent_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS inbox (
		event_id     TEXT PRIMARY KEY,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		event_id   TEXT NOT NULL,
		order_id   TEXT NOT NULL,
		recipient  TEXT NOT NULL,
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (event_id, recipient)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		buyer_id   TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		added_at   TIMESTAMPTZ NOT NULL,
		position   BIGSERIAL,
		PRIMARY KEY (buyer_id, product_id)
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, t tx.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &pgxTx{tx: pgTx, topic: s.topic}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	return outbox.FetchPending(ctx, s.pool, limit)
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	return outbox.MarkSent(ctx, s.pool, id)
}

var _ outbox.Source = (*Store)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return tx.ErrNotFound
	}
	return err
}
