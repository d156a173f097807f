package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_CountsLiveBridges(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("Count=%d, want 0", tr.Count())
	}

	doneA := tr.Register("bridge-a", Handle{})
	doneB := tr.Register("bridge-b", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("Count=%d, want 2", tr.Count())
	}

	doneA()
	doneA() // idempotent
	if tr.Count() != 1 {
		t.Fatalf("Count=%d, want 1", tr.Count())
	}

	doneB()
	if tr.Count() != 0 {
		t.Fatalf("Count=%d, want 0", tr.Count())
	}
	if !tr.Wait(context.Background()) {
		t.Fatal("Wait=false with no live bridges")
	}
}

func TestTracker_ReregisterReleasesPrevious(t *testing.T) {
	tr := NewTracker()
	var cancelled atomic.Int64

	stale := tr.Register("bridge-a", Handle{Cancel: func() { cancelled.Add(1) }})
	tr.Register("bridge-a", Handle{})
	if tr.Count() != 1 {
		t.Fatalf("Count=%d, want 1", tr.Count())
	}

	// The stale unregister func must not release the live registration.
	stale()
	if tr.Count() != 1 {
		t.Fatalf("Count after stale unregister=%d, want 1", tr.Count())
	}
	if cancelled.Load() != 0 {
		t.Fatalf("re-registration invoked Cancel %d times", cancelled.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatal("Wait=true while a bridge is still registered")
	}
}

func TestTracker_CancelAllHitsEveryBridge(t *testing.T) {
	tr := NewTracker()
	var cancels atomic.Int64
	tr.Register("bridge-a", Handle{Cancel: func() { cancels.Add(1) }})
	tr.Register("bridge-b", Handle{Cancel: func() { cancels.Add(1) }})
	tr.Register("bridge-c", Handle{}) // no cancel func

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("CancelAll=%d, want 2", n)
	}
	if cancels.Load() != 2 {
		t.Fatalf("cancel calls=%d, want 2", cancels.Load())
	}
}

func TestTracker_WarnAllSurvivesFailingBridge(t *testing.T) {
	tr := NewTracker()
	var got atomic.Int64
	tr.Register("bridge-a", Handle{Warn: func(code, message string) error {
		if code != "draining" || message != "gateway restarting" {
			t.Errorf("warn(%q, %q)", code, message)
		}
		got.Add(1)
		return nil
	}})
	tr.Register("bridge-b", Handle{Warn: func(string, string) error {
		got.Add(1)
		return errors.New("write failed")
	}})

	if sent := tr.WarnAll("draining", "gateway restarting"); sent != 2 {
		t.Fatalf("WarnAll=%d, want 2", sent)
	}
	if got.Load() != 2 {
		t.Fatalf("warn calls=%d, want 2", got.Load())
	}
}

func TestTracker_WaitHonorsContext(t *testing.T) {
	tr := NewTracker()
	done := tr.Register("bridge-a", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatal("Wait=true before the bridge unregistered")
	}

	done()
	if !tr.Wait(context.Background()) {
		t.Fatal("Wait=false after the last bridge unregistered")
	}
}

func TestTracker_NilTrackerIsInert(t *testing.T) {
	var tr *Tracker
	done := tr.Register("bridge-a", Handle{Cancel: func() {}})
	done()
	if tr.Count() != 0 {
		t.Fatalf("Count=%d, want 0", tr.Count())
	}
	if tr.CancelAll() != 0 || tr.WarnAll("draining", "x") != 0 {
		t.Fatal("nil tracker performed work")
	}
	if !tr.Wait(context.Background()) {
		t.Fatal("Wait=false on nil tracker")
	}
}
