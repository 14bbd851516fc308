package flood

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFloodgate_Allow_AllowsNormalUsage(t *testing.T) {
	fg := New(3)
	defer fg.Stop()

	for i := range 3 {
		if !fg.Allow("youtube") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if fg.Allow("youtube") {
		t.Error("4th request should be blocked")
	}
}

func TestFloodgate_Allow_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	fg := New(2, WithClock(clock.Now))
	defer fg.Stop()

	if !fg.Allow("deezer") {
		t.Fatal("First request should be allowed")
	}
	clock.Advance(30 * time.Second)
	if !fg.Allow("deezer") {
		t.Fatal("Second request should be allowed")
	}
	if fg.Allow("deezer") {
		t.Error("Third request should be blocked")
	}

	// The first request leaves the window, the second is still inside.
	clock.Advance(31 * time.Second)
	if !fg.Allow("deezer") {
		t.Error("Request after one timestamp left the window should be allowed")
	}
	if fg.Allow("deezer") {
		t.Error("Window is full again and should block")
	}
}

func TestFloodgate_Allow_BlockedRequestsDoNotCount(t *testing.T) {
	clock := newFakeClock()
	fg := New(1, WithClock(clock.Now))
	defer fg.Stop()

	fg.Allow("client")
	for range 5 {
		clock.Advance(10 * time.Second)
		fg.Allow("client")
	}

	clock.Advance(11 * time.Second)
	if !fg.Allow("client") {
		t.Error("Denied requests must not extend the window")
	}
}

func TestFloodgate_Allow_PerKey(t *testing.T) {
	fg := New(2)
	defer fg.Stop()

	for i := range 2 {
		if !fg.Allow("youtube") {
			t.Errorf("Request %d for youtube should be allowed", i+1)
		}
		if !fg.Allow("10.0.0.1") {
			t.Errorf("Request %d for 10.0.0.1 should be allowed", i+1)
		}
	}

	if fg.Allow("youtube") {
		t.Error("Extra request for youtube should be blocked")
	}
	if fg.Allow("10.0.0.1") {
		t.Error("Extra request for 10.0.0.1 should be blocked")
	}
	if !fg.Allow("deezer") {
		t.Error("Unrelated key should be allowed")
	}
}

func TestFloodgate_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	fg := New(2, WithClock(clock.Now))
	defer fg.Stop()

	if got := fg.RetryAfter("unknown"); got != 0 {
		t.Errorf("RetryAfter() for unseen key = %v, want 0", got)
	}

	fg.Allow("client")
	clock.Advance(20 * time.Second)
	fg.Allow("client")

	if got := fg.RetryAfter("client"); got != 40*time.Second {
		t.Errorf("RetryAfter() = %v, want 40s", got)
	}

	clock.Advance(40 * time.Second)
	if got := fg.RetryAfter("client"); got != 0 {
		t.Errorf("RetryAfter() after the oldest request expired = %v, want 0", got)
	}
}

func TestFloodgate_WithWindow(t *testing.T) {
	clock := newFakeClock()
	fg := New(1, WithClock(clock.Now), WithWindow(time.Second))
	defer fg.Stop()

	fg.Allow("youtube")
	if fg.Allow("youtube") {
		t.Error("Second request inside the window should be blocked")
	}

	clock.Advance(time.Second)
	if !fg.Allow("youtube") {
		t.Error("Request after the custom window should be allowed")
	}
	if stats := fg.Stats(); stats.WindowSeconds != 1 {
		t.Errorf("Expected window seconds 1, got %d", stats.WindowSeconds)
	}
}

func TestFloodgate_Stats(t *testing.T) {
	fg := New(5)
	defer fg.Stop()

	stats := fg.Stats()
	if stats.ActiveKeys != 0 {
		t.Errorf("Expected 0 active keys initially, got %d", stats.ActiveKeys)
	}
	if stats.LimitPerMinute != 5 {
		t.Errorf("Expected limit per minute 5, got %d", stats.LimitPerMinute)
	}
	if stats.WindowSeconds != 60 {
		t.Errorf("Expected window seconds 60, got %d", stats.WindowSeconds)
	}

	fg.Allow("youtube")
	fg.Allow("deezer")
	fg.Allow("youtube")

	if stats = fg.Stats(); stats.ActiveKeys != 2 {
		t.Errorf("Expected 2 active keys, got %d", stats.ActiveKeys)
	}
}

func TestFloodgate_EdgeCases(t *testing.T) {
	t.Run("Zero limit", func(t *testing.T) {
		fg := New(0)
		defer fg.Stop()

		if fg.Allow("youtube") {
			t.Error("Request should be blocked with zero limit")
		}
		if got := fg.RetryAfter("youtube"); got != DefaultWindow {
			t.Errorf("RetryAfter() with zero limit = %v, want %v", got, DefaultWindow)
		}
	})

	t.Run("Negative limit", func(t *testing.T) {
		fg := New(-3)
		defer fg.Stop()

		if fg.Allow("youtube") {
			t.Error("Request should be blocked with negative limit")
		}
	})

	t.Run("Empty key", func(t *testing.T) {
		fg := New(1)
		defer fg.Stop()

		if !fg.Allow("") {
			t.Error("Should allow request with empty key")
		}
		if fg.Allow("") {
			t.Error("Second request with empty key should be blocked")
		}
	})

	t.Run("Stop twice", func(_ *testing.T) {
		fg := New(1)
		fg.Stop()
		fg.Stop()
	})
}

func TestFloodgate_DropIdle(t *testing.T) {
	clock := newFakeClock()
	fg := New(1, WithClock(clock.Now))
	defer fg.Stop()

	fg.Allow("idle")
	clock.Advance(idleTimeout)
	fg.Allow("active")
	clock.Advance(time.Minute)

	fg.dropIdle()

	if stats := fg.Stats(); stats.ActiveKeys != 1 {
		t.Errorf("Expected 1 active key after cleanup, got %d", stats.ActiveKeys)
	}
	if !fg.Allow("idle") {
		t.Error("Dropped key should start with a fresh window")
	}
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	const limit = 10
	fg := New(limit)
	defer fg.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				if fg.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
				fg.RetryAfter("shared")
				fg.Stats()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("Allowed %d requests, want exactly %d", allowed, limit)
	}
}
