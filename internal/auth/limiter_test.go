package auth

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToMaxPerWindow(t *testing.T) {
	l := NewLimiter(2, time.Hour)

	if !l.Allow("rep-1") {
		t.Fatal("first request rejected")
	}
	if !l.Allow("rep-1") {
		t.Fatal("second request rejected")
	}
	if l.Allow("rep-1") {
		t.Fatal("third request allowed, want rejection")
	}
	// A different identity has its own window.
	if !l.Allow("rep-2") {
		t.Fatal("other identity rejected")
	}
}

func TestLimiterResetsAfterWindowElapses(t *testing.T) {
	l := NewLimiter(1, 10*time.Millisecond)

	if !l.Allow("rep-1") {
		t.Fatal("first request rejected")
	}
	if l.Allow("rep-1") {
		t.Fatal("second request allowed within window")
	}

	time.Sleep(15 * time.Millisecond)
	if !l.Allow("rep-1") {
		t.Fatal("request rejected after window elapsed")
	}
}

func TestLimiterRejectionDoesNotExtendWindow(t *testing.T) {
	l := NewLimiter(1, 20*time.Millisecond)

	if !l.Allow("rep-1") {
		t.Fatal("first request rejected")
	}
	// Hammering while limited must not push the window start forward.
	for i := 0; i < 5; i++ {
		if l.Allow("rep-1") {
			t.Fatal("over-quota request allowed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !l.Allow("rep-1") {
		t.Fatal("request rejected after original window elapsed")
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	l := NewLimiter(5, 10*time.Millisecond)

	l.Allow("rep-1")
	l.Allow("rep-2")
	if l.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", l.Size())
	}

	time.Sleep(15 * time.Millisecond)
	l.Sweep()
	if l.Size() != 0 {
		t.Fatalf("Size() after sweep = %d, want 0", l.Size())
	}
}
