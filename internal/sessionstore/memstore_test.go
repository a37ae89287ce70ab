package sessionstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemStoreGetOrCreateIsIdempotent(t *testing.T) {
	store := NewMemStore(time.Minute)
	ctx := context.Background()
	env := Envelope{TenantID: "acme", Channel: "web", UserID: "u1"}

	var wg sync.WaitGroup
	keys := make([]string, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.GetOrCreate(ctx, env)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			keys[i] = s.Key
		}(i)
	}
	wg.Wait()

	want := Key("acme", "web", "u1")
	for _, k := range keys {
		if k != want {
			t.Fatalf("got key %q, want %q", k, want)
		}
	}

	count, err := store.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one session to have been created concurrently, got %d", count)
	}
}

func TestMemStoreInterruptClearsActiveTurn(t *testing.T) {
	store := NewMemStore(time.Minute)
	ctx := context.Background()
	s, err := store.GetOrCreate(ctx, Envelope{TenantID: "t", Channel: "c", UserID: "u"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := store.StartTurn(ctx, s.Key, "turn-1"); err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	if err := store.Interrupt(ctx, s.Key); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	got, err := store.Get(ctx, s.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ActiveTurnID != "" {
		t.Fatalf("expected ActiveTurnID to be cleared, got %q", got.ActiveTurnID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("expected InterruptionCount 1, got %d", got.InterruptionCount)
	}
}

func TestMemStoreExpiresInactiveSessions(t *testing.T) {
	store := NewMemStore(10 * time.Millisecond)
	var expiredKey string
	store.SetExpireHook(func(s *Session) { expiredKey = s.Key })

	ctx := context.Background()
	s, err := store.GetOrCreate(ctx, Envelope{TenantID: "t", Channel: "c", UserID: "u"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	store.expireInactive()

	if expiredKey != s.Key {
		t.Fatalf("expected expire hook to fire for %q, got %q", s.Key, expiredKey)
	}
	got, err := store.Get(ctx, s.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("expected status ended, got %s", got.Status)
	}
}
