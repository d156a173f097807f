package lifecycle

import (
	"testing"
	"time"
)

func TestDrainingToggles(t *testing.T) {
	l := &Lifecycle{}
	if l.IsDraining() {
		t.Fatal("new lifecycle reports draining")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatal("SetDraining(true) not observed")
	}
	l.SetDraining(false)
	if l.IsDraining() {
		t.Fatal("SetDraining(false) not observed")
	}
}

func TestUptime(t *testing.T) {
	l := &Lifecycle{}
	if l.Uptime() != 0 {
		t.Fatal("uptime before start")
	}
	l.MarkStarted()
	time.Sleep(time.Millisecond)
	first := l.Uptime()
	if first <= 0 {
		t.Fatalf("uptime=%v", first)
	}
	// A second MarkStarted must not reset the start time.
	l.MarkStarted()
	if l.Uptime() < first {
		t.Fatal("MarkStarted reset the start time")
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var l *Lifecycle
	l.MarkStarted()
	l.SetDraining(true)
	if l.IsDraining() || l.Uptime() != 0 {
		t.Fatal("nil lifecycle not inert")
	}
}
