package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

type migration struct {
	Version string
	Up      string
}

var migrations = []migration{
	{Version: "1.0.0", Up: schemaV1},
	{Version: "1.1.0", Up: schemaV1_1},
	{Version: "1.2.0", Up: schemaV1_2},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	seller_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL DEFAULT 0,
	quantity    INTEGER NOT NULL CHECK (quantity >= 0),
	available   INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                   TEXT PRIMARY KEY,
	number               TEXT NOT NULL,
	buyer_id             TEXT NOT NULL,
	seller_id            TEXT NOT NULL,
	total_cents          INTEGER NOT NULL,
	status               TEXT NOT NULL,
	payment_status       TEXT NOT NULL,
	fulfillment_mode     TEXT NOT NULL,
	delivery_address     TEXT NOT NULL DEFAULT '',
	pickup_date          TEXT NOT NULL DEFAULT '',
	special_instructions TEXT NOT NULL DEFAULT '',
	cancel_reason        TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	confirmed_at         TEXT,
	completed_at         TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at);

CREATE TABLE IF NOT EXISTS order_items (
	id               TEXT PRIMARY KEY,
	order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id       TEXT NOT NULL,
	quantity         INTEGER NOT NULL CHECK (quantity > 0),
	unit_price_cents INTEGER NOT NULL,
	subtotal_cents   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS order_idempotency (
	key      TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id)
);
`

const schemaV1_1 = `
CREATE TABLE IF NOT EXISTS outbox (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL UNIQUE,
	topic      TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE sent_at IS NULL;
`

const schemaV1_2 = `
CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id, created_at);
CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id);

CREATE TABLE IF NOT EXISTS cart_items (
	buyer_id   TEXT NOT NULL,
	product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	added_at   TEXT NOT NULL,
	PRIMARY KEY (buyer_id, product_id)
);
`

func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return nil, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var raw string
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY rowid DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
	}
	return v, nil
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if _, err := db.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}
