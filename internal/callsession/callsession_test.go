package callsession_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/callorder/internal/callsession"
	"github.com/MrWong99/callorder/internal/order"
)

func TestMemStore_PutGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := callsession.NewMemStore()

	sess := callsession.Session{
		CallID:       "CA123",
		Order:        order.Order{Items: []order.Item{{Name: "coke", Quantity: 1}}},
		RawUtterance: "a coke",
		CreatedAt:    time.Now(),
	}
	if err := s.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	got, err := s.Get(ctx, "CA123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RawUtterance != "a coke" || len(got.Order.Items) != 1 {
		t.Errorf("Get = %+v", got)
	}

	if err := s.Delete(ctx, "CA123"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "CA123"); !errors.Is(err, callsession.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "CA123"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestMemStore_PutReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := callsession.NewMemStore(callsession.WithShards(1))

	_ = s.Put(ctx, callsession.Session{CallID: "CA1"})
	_ = s.Put(ctx, callsession.Session{CallID: "CA1", ConfirmAttempts: 1})

	got, err := s.Get(ctx, "CA1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ConfirmAttempts != 1 {
		t.Errorf("ConfirmAttempts = %d, want 1", got.ConfirmAttempts)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemStore_RejectsEmptyCallID(t *testing.T) {
	t.Parallel()

	if err := callsession.NewMemStore().Put(context.Background(), callsession.Session{}); err == nil {
		t.Error("Put with empty call id: expected error")
	}
}

func TestMemStore_ConcurrentCallsDoNotInterfere(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := callsession.NewMemStore(callsession.WithShards(4))

	const calls = 64
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("CA%03d", i)
			for attempt := range 20 {
				sess := callsession.Session{CallID: id, RawUtterance: id, ConfirmAttempts: attempt}
				if err := s.Put(ctx, sess); err != nil {
					t.Errorf("Put(%s): %v", id, err)
					return
				}
				got, err := s.Get(ctx, id)
				if err != nil {
					t.Errorf("Get(%s): %v", id, err)
					return
				}
				if got.RawUtterance != id || got.ConfirmAttempts != attempt {
					t.Errorf("Get(%s) = %+v, observed another call's state", id, got)
					return
				}
			}
			if i%2 == 0 {
				_ = s.Delete(ctx, id)
			}
		}()
	}
	wg.Wait()

	if got := s.Len(); got != calls/2 {
		t.Errorf("Len() = %d, want %d", got, calls/2)
	}
}

func TestReaper_RemovesExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := callsession.NewMemStore()

	_ = s.Put(ctx, callsession.Session{CallID: "old", CreatedAt: now.Add(-11 * time.Minute)})
	_ = s.Put(ctx, callsession.Session{CallID: "fresh", CreatedAt: now.Add(-time.Minute)})

	r := callsession.NewReaper(callsession.ReaperConfig{
		Store: s,
		TTL:   10 * time.Minute,
		Now:   func() time.Time { return now },
	})
	n, err := r.ReapNow(ctx)
	if err != nil {
		t.Fatalf("ReapNow: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := s.Get(ctx, "old"); !errors.Is(err, callsession.ErrNotFound) {
		t.Errorf("old session still present (err=%v)", err)
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := callsession.NewMemStore()
	_ = s.Put(ctx, callsession.Session{CallID: "stale", CreatedAt: time.Now().Add(-time.Hour)})

	r := callsession.NewReaper(callsession.ReaperConfig{
		Store:    s,
		TTL:      time.Minute,
		Interval: 5 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Len() != 0 {
		t.Error("reaper did not remove the stale session")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	r.Stop()
	r.Stop()
}

func TestMemStore_TakeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := callsession.NewMemStore()
	_ = s.Put(ctx, callsession.Session{CallID: "CA1", RawUtterance: "two cokes"})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "CA1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, callsession.ErrNotFound) {
				t.Errorf("Take: unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful takes = %d, want 1", wins)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestMemStore_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bump := func(s *callsession.Session) error {
		s.ConfirmAttempts++
		return nil
	}
	errRefused := errors.New("refused")

	tests := []struct {
		name         string
		stored       bool
		fn           func(*callsession.Session) error
		wantErr      error
		wantAttempts int
	}{
		{name: "increments", stored: true, fn: bump, wantAttempts: 1},
		{name: "missing session", stored: false, fn: bump, wantErr: callsession.ErrNotFound},
		{
			name:   "fn error leaves session unchanged",
			stored: true,
			fn: func(s *callsession.Session) error {
				s.ConfirmAttempts = 99
				return errRefused
			},
			wantErr:      errRefused,
			wantAttempts: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := callsession.NewMemStore()
			if tc.stored {
				if err := s.Put(ctx, callsession.Session{CallID: "CA1"}); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}

			_, err := s.Update(ctx, "CA1", tc.fn)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Update() error = %v, want %v", err, tc.wantErr)
			}
			if !tc.stored {
				if s.Len() != 0 {
					t.Errorf("Len() = %d, want 0: Update must not create sessions", s.Len())
				}
				return
			}
			got, err := s.Get(ctx, "CA1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ConfirmAttempts != tc.wantAttempts {
				t.Errorf("ConfirmAttempts = %d, want %d", got.ConfirmAttempts, tc.wantAttempts)
			}
		})
	}
}

func TestMemStore_UpdateAfterTakeFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := callsession.NewMemStore()
	if err := s.Put(ctx, callsession.Session{CallID: "CA1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var wg sync.WaitGroup
	var updated, taken int
	var mu sync.Mutex
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				if _, err := s.Take(ctx, "CA1"); err == nil {
					mu.Lock()
					taken++
					mu.Unlock()
				}
				return
			}
			if _, err := s.Update(ctx, "CA1", func(s *callsession.Session) error {
				s.ConfirmAttempts++
				return nil
			}); err == nil {
				mu.Lock()
				updated++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Errorf("successful takes = %d, want 1", taken)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after take, want 0", s.Len())
	}
}
