package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestPacer(t *testing.T) {
	p := NewPacer(200 * time.Millisecond)

	// First request goes through immediately
	if !p.Allow() {
		t.Error("Expected first request to be allowed")
	}

	// Second request inside the interval is denied
	if p.Allow() {
		t.Error("Expected request inside pacing interval to be denied")
	}

	// Wait blocks out the remainder of the interval
	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected Wait to block for the pacing interval, waited %v", elapsed)
	}

	// Reset allows an immediate request again
	p.Reset()
	if !p.Allow() {
		t.Error("Expected request to be allowed after reset")
	}
}

func TestPacerWaitCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	p.Allow() // consume the initial slot

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail when context expires")
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, time.Second)

	// Test initial requests
	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// Test limit reached
	if sw.Allow() {
		t.Error("Expected request to be denied when limit is reached")
	}

	// Test window sliding
	time.Sleep(time.Second + 100*time.Millisecond)
	if !sw.Allow() {
		t.Error("Expected request to be allowed after window slides")
	}

	// Test reset
	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected requests to be cleared after reset")
	}
}

func TestSlidingWindowWaitCancellation(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	sw.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sw.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail when context expires")
	}
}

func TestCombined(t *testing.T) {
	c := NewCombined(
		NewSlidingWindow(2, time.Second),
		NewSlidingWindow(5, time.Second),
	)

	if !c.Allow() {
		t.Error("Expected first request to be allowed")
	}
	if !c.Allow() {
		t.Error("Expected second request to be allowed")
	}
	if c.Allow() {
		t.Error("Expected request to be denied once the tighter window fills")
	}

	c.Reset()
	if !c.Allow() {
		t.Error("Expected request to be allowed after reset")
	}
}
