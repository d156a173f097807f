package session

import (
	"fmt"
	"testing"
	"time"
)

func newTestStore(maxTurns int, ttl time.Duration, now *time.Time) *Store {
	return NewStore(Options{
		MaxTurns:      maxTurns,
		TTL:           ttl,
		SweepInterval: time.Hour, // background sweep stays out of the way
		Now:           func() time.Time { return *now },
	})
}

func TestStore_GetUnknownSessionIsEmpty(t *testing.T) {
	now := time.Now()
	s := newTestStore(5, time.Minute, &now)
	defer s.Close()

	if turns := s.Get("nope"); len(turns) != 0 {
		t.Fatalf("Get=%v, want empty", turns)
	}
	if s.Len() != 0 {
		t.Fatalf("Len=%d, want 0 (Get must not create sessions)", s.Len())
	}
}

func TestStore_AddTurnTruncatesToTwiceMaxTurns(t *testing.T) {
	now := time.Now()
	s := newTestStore(3, time.Minute, &now)
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.AddTurn("s1", "user", fmt.Sprintf("q%d", i))
		s.AddTurn("s1", "assistant", fmt.Sprintf("a%d", i))
	}

	turns := s.Get("s1")
	if len(turns) != 6 {
		t.Fatalf("len=%d, want 6", len(turns))
	}
	// Oldest entries dropped, most recent kept in order.
	if turns[0].Text != "q7" || turns[5].Text != "a9" {
		t.Fatalf("turns=%v", turns)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	now := time.Now()
	s := newTestStore(5, time.Minute, &now)
	defer s.Close()

	s.AddTurn("s1", "user", "hello")
	got := s.Get("s1")
	got[0].Text = "mutated"

	if again := s.Get("s1"); again[0].Text != "hello" {
		t.Fatalf("internal state mutated: %v", again)
	}
}

func TestStore_SweepRemovesIdleSessions(t *testing.T) {
	now := time.Now()
	s := newTestStore(5, time.Minute, &now)
	defer s.Close()

	s.AddTurn("idle", "user", "x")
	s.AddTurn("busy", "user", "y")

	now = now.Add(50 * time.Second)
	// Reading refreshes activity, keeping the session alive.
	s.Get("busy")

	now = now.Add(20 * time.Second)
	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if turns := s.Get("idle"); len(turns) != 0 {
		t.Fatalf("idle session survived sweep: %v", turns)
	}
	if turns := s.Get("busy"); len(turns) != 1 {
		t.Fatalf("busy session lost: %v", turns)
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	now := time.Now()
	s := newTestStore(5, time.Minute, &now)
	s.Close()
	s.Close()
}
