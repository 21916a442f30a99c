package callsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/MrWong99/callorder/internal/observe"
)

const defaultShards = 32

// MemOption configures a [MemStore].
type MemOption func(*MemStore)

// WithShards sets the number of lock shards. Default: 32.
func WithShards(n int) MemOption {
	return func(s *MemStore) {
		if n > 0 {
			s.shards = make([]shard, n)
		}
	}
}

// WithMetrics keeps [observe.Metrics.ActiveSessions] in step with the number
// of stored sessions.
func WithMetrics(m *observe.Metrics) MemOption {
	return func(s *MemStore) {
		s.metrics = m
	}
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// MemStore is an in-process [Store]. Call ids are spread over shards by
// xxhash, each shard guarded by its own RWMutex, so concurrent calls rarely
// contend on the same lock.
type MemStore struct {
	shards  []shard
	metrics *observe.Metrics
}

// NewMemStore returns an empty [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{shards: make([]shard, defaultShards)}
	for _, o := range opts {
		o(s)
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]Session)
	}
	return s
}

func (s *MemStore) shardFor(callID string) *shard {
	return &s.shards[xxhash.Sum64String(callID)%uint64(len(s.shards))]
}

// Put implements [Store].
func (s *MemStore) Put(ctx context.Context, sess Session) error {
	if sess.CallID == "" {
		return fmt.Errorf("callsession: put: empty call id")
	}
	sh := s.shardFor(sess.CallID)
	sh.mu.Lock()
	_, existed := sh.sessions[sess.CallID]
	sh.sessions[sess.CallID] = sess
	sh.mu.Unlock()

	if !existed && s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, callID string) (Session, error) {
	sh := s.shardFor(callID)
	sh.mu.RLock()
	sess, ok := sh.sessions[callID]
	sh.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete implements [Store].
func (s *MemStore) Delete(ctx context.Context, callID string) error {
	sh := s.shardFor(callID)
	sh.mu.Lock()
	_, existed := sh.sessions[callID]
	delete(sh.sessions, callID)
	sh.mu.Unlock()

	if existed && s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	return nil
}

// Take implements [Store].
func (s *MemStore) Take(ctx context.Context, callID string) (Session, error) {
	sh := s.shardFor(callID)
	sh.mu.Lock()
	sess, ok := sh.sessions[callID]
	delete(sh.sessions, callID)
	sh.mu.Unlock()

	if !ok {
		return Session{}, ErrNotFound
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	return sess, nil
}

// Update implements [Store]. fn runs under the shard lock and must not call
// back into the store.
func (s *MemStore) Update(_ context.Context, callID string, fn func(*Session) error) (Session, error) {
	sh := s.shardFor(callID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if err := fn(&sess); err != nil {
		return Session{}, err
	}
	sess.CallID = callID
	sh.sessions[callID] = sess
	return sess, nil
}

// Len implements [Store].
func (s *MemStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// DeleteOlderThan implements [Expirer]. Shards are swept one at a time.
func (s *MemStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (removed int, err error) {
	defer func() {
		if removed > 0 && s.metrics != nil {
			s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -int64(removed))
		}
	}()
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.CreatedAt.Before(cutoff) {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Compile-time interface assertions.
var (
	_ Store   = (*MemStore)(nil)
	_ Expirer = (*MemStore)(nil)
)
