// Package orderlog archives confirmed orders in PostgreSQL.
//
// The archive is write-mostly: the dialog records every confirmed order and
// operators query recent ones. [Migrate] creates the schema and is safe to
// run on every start.
//
// Usage:
//
//	store, err := orderlog.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	id, _ := store.Record(ctx, orderlog.Entry{CallID: sid, Items: o.Items, Total: o.Total})
package orderlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConfirmedOrders = `
CREATE TABLE IF NOT EXISTS confirmed_orders (
    id            UUID           PRIMARY KEY,
    call_id       TEXT           NOT NULL,
    items         JSONB          NOT NULL,
    summary       TEXT           NOT NULL,
    total         NUMERIC(10,2)  NOT NULL,
    currency      TEXT           NOT NULL DEFAULT '',
    utterance     TEXT           NOT NULL DEFAULT '',
    confirmed_at  TIMESTAMPTZ    NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_confirmed_orders_call_id
    ON confirmed_orders (call_id);

CREATE INDEX IF NOT EXISTS idx_confirmed_orders_confirmed_at
    ON confirmed_orders (confirmed_at);
`

// Migrate creates or ensures the archive table and its indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlConfirmedOrders); err != nil {
		return fmt.Errorf("orderlog migrate: %w", err)
	}
	return nil
}
