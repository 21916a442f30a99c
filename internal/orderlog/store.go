package orderlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/callorder/internal/order"
)

// Entry is one archived order.
type Entry struct {
	// ID is assigned by [Store.Record] when empty.
	ID          string
	CallID      string
	Items       []order.Item
	Summary     string
	Total       decimal.Decimal
	Currency    string
	Utterance   string
	ConfirmedAt time.Time
}

// Store is the PostgreSQL-backed order archive. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("orderlog: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("orderlog: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("orderlog: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("orderlog: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. It backs the readiness
// probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record inserts e and returns its id. A missing id is generated as a random
// UUID; a supplied id must parse as one. A zero ConfirmedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	id := uuid.New()
	if e.ID != "" {
		parsed, err := uuid.Parse(e.ID)
		if err != nil {
			return "", fmt.Errorf("orderlog: record: invalid id %q: %w", e.ID, err)
		}
		id = parsed
	}
	if e.ConfirmedAt.IsZero() {
		e.ConfirmedAt = time.Now().UTC()
	}
	items, err := json.Marshal(e.Items)
	if err != nil {
		return "", fmt.Errorf("orderlog: encode items: %w", err)
	}

	const q = `
		INSERT INTO confirmed_orders
		    (id, call_id, items, summary, total, currency, utterance, confirmed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, q,
		id,
		e.CallID,
		items,
		e.Summary,
		e.Total.StringFixed(2),
		e.Currency,
		e.Utterance,
		e.ConfirmedAt,
	)
	if err != nil {
		return "", fmt.Errorf("orderlog: record: %w", err)
	}
	return id.String(), nil
}

// Get returns the entry with the given id. It returns [pgx.ErrNoRows]
// (wrapped) when no such entry exists.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	const q = `
		SELECT id::text, call_id, items, summary, total::text, currency, utterance, confirmed_at
		FROM   confirmed_orders
		WHERE  id = $1`

	uid, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("orderlog: get: invalid id %q: %w", id, err)
	}
	rows, err := s.pool.Query(ctx, q, uid)
	if err != nil {
		return Entry{}, fmt.Errorf("orderlog: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		return Entry{}, fmt.Errorf("orderlog: get: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
		SELECT id::text, call_id, items, summary, total::text, currency, utterance, confirmed_at
		FROM   confirmed_orders
		ORDER  BY confirmed_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("orderlog: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("orderlog: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// scanEntry scans one confirmed_orders row.
func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e     Entry
		items []byte
		total string
	)
	if err := row.Scan(
		&e.ID,
		&e.CallID,
		&items,
		&e.Summary,
		&total,
		&e.Currency,
		&e.Utterance,
		&e.ConfirmedAt,
	); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(items, &e.Items); err != nil {
		return Entry{}, fmt.Errorf("decode items: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Entry{}, fmt.Errorf("decode total: %w", err)
	}
	e.Total = d
	return e, nil
}
