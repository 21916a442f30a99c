package orderlog_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/callorder/internal/order"
	"github.com/MrWong99/callorder/internal/orderlog"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CALLORDER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CALLORDER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALLORDER_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [orderlog.Store] on an empty table.
func newTestStore(t *testing.T) *orderlog.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS confirmed_orders`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	store, err := orderlog.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_RecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items := []order.Item{{Name: "chicken baguette", Quantity: 2}, {Name: "coke", Quantity: 1}}
	id, err := store.Record(ctx, orderlog.Entry{
		CallID:    "CA42",
		Items:     items,
		Summary:   "2 x chicken baguette, 1 x coke",
		Total:     decimal.RequireFromString("13.18"),
		Currency:  "£",
		Utterance: "two chicken baguettes and a coke",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("Record returned empty id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CallID != "CA42" || got.Currency != "£" {
		t.Errorf("Get = %+v", got)
	}
	if !got.Total.Equal(decimal.RequireFromString("13.18")) {
		t.Errorf("Total = %s, want 13.18", got.Total)
	}
	if len(got.Items) != 2 || got.Items[0] != items[0] || got.Items[1] != items[1] {
		t.Errorf("Items = %+v, want %+v", got.Items, items)
	}
	if time.Since(got.ConfirmedAt) > time.Minute {
		t.Errorf("ConfirmedAt = %v, want about now", got.ConfirmedAt)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Get missing err = %v, want pgx.ErrNoRows", err)
	}
}

func TestStore_RecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, call := range []string{"CA1", "CA2", "CA3"} {
		_, err := store.Record(ctx, orderlog.Entry{
			CallID:      call,
			Items:       []order.Item{{Name: "coke", Quantity: 1}},
			Summary:     "1 x coke",
			Total:       decimal.RequireFromString("1.20"),
			ConfirmedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record(%s): %v", call, err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].CallID != "CA3" || recent[1].CallID != "CA2" {
		t.Errorf("order = %s, %s; want CA3, CA2", recent[0].CallID, recent[1].CallID)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
