package statestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemory_PutConsume(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "state-1", "http://localhost:3000"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	dest, err := s.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if dest != "http://localhost:3000" {
		t.Errorf("destination = %q, want %q", dest, "http://localhost:3000")
	}
}

// A state consumed once must fail a second consume: single use.
func TestMemory_ConsumeIsSingleUse(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "state-1", "http://localhost:3000")

	if _, err := s.Consume(ctx, "state-1"); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if _, err := s.Consume(ctx, "state-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Consume() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_UnknownState(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	if _, err := s.Consume(context.Background(), "never-seen"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Consume() error = %v, want ErrNotFound", err)
	}
}

// Entries past the TTL are unusable even if never explicitly deleted.
func TestMemory_Expiry(t *testing.T) {
	s := newMemoryWithTTL(20 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "state-1", "http://localhost:3000")
	time.Sleep(50 * time.Millisecond)

	if _, err := s.Consume(ctx, "state-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Consume() after expiry error = %v, want ErrNotFound", err)
	}
}

// Two concurrent consumers of the same state: exactly one wins.
func TestMemory_ConcurrentConsume(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "state-1", "http://localhost:3000")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "state-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("got %d successful consumes, want exactly 1", wins)
	}
}

func TestMemory_ConcurrentPutsDistinctKeys(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	states := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, st := range states {
		wg.Add(1)
		go func(st string) {
			defer wg.Done()
			s.Put(ctx, st, "dest-"+st)
		}(st)
	}
	wg.Wait()

	for _, st := range states {
		dest, err := s.Consume(ctx, st)
		if err != nil {
			t.Fatalf("Consume(%q) error = %v", st, err)
		}
		if dest != "dest-"+st {
			t.Errorf("Consume(%q) = %q, want %q", st, dest, "dest-"+st)
		}
	}
}
