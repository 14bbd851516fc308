// Package flood provides sliding-window rate limiting keyed by arbitrary strings, such as a
// provider name or a client address.
package flood

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the length of the sliding window.
	DefaultWindow = time.Minute
	// cleanupInterval is how often idle keys are dropped
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a key may stay unused before it is dropped
	idleTimeout = 10 * time.Minute
)

// Floodgate allows at most limit requests per key within a sliding window.
type Floodgate struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mutex sync.Mutex
	keys  map[string]*requestLog

	done     chan struct{}
	stopOnce sync.Once
}

// requestLog holds the admitted request times of one key, oldest first.
type requestLog struct {
	admitted []time.Time
	lastSeen time.Time
}

// expire drops the admitted times at or before cutoff.
func (l *requestLog) expire(cutoff time.Time) {
	n := 0
	for n < len(l.admitted) && !l.admitted[n].After(cutoff) {
		n++
	}
	l.admitted = append(l.admitted[:0], l.admitted[n:]...)
}

// Option customises a Floodgate.
type Option func(*Floodgate)

// WithWindow replaces the one-minute window.
func WithWindow(window time.Duration) Option {
	return func(fg *Floodgate) {
		if window > 0 {
			fg.window = window
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(fg *Floodgate) {
		if now != nil {
			fg.now = now
		}
	}
}

// New creates a Floodgate allowing limitPerMinute requests per key and starts its cleanup
// goroutine. Call Stop to release it.
func New(limitPerMinute int, opts ...Option) *Floodgate {
	fg := &Floodgate{
		limit:  max(limitPerMinute, 0),
		window: DefaultWindow,
		now:    time.Now,
		keys:   make(map[string]*requestLog),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fg)
	}

	go fg.cleanup()

	return fg
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() {
		close(fg.done)
	})
}

// Allow reports whether another request for key fits in the window and records it if so.
func (fg *Floodgate) Allow(key string) bool {
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	log := fg.logFor(key, now)
	if len(log.admitted) >= fg.limit {
		return false
	}
	log.admitted = append(log.admitted, now)
	return true
}

// RetryAfter returns how long key has to wait until Allow can succeed again. It is zero
// when a request would be admitted now. With a zero limit it is the full window.
func (fg *Floodgate) RetryAfter(key string) time.Duration {
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	if fg.limit == 0 {
		return fg.window
	}

	log, ok := fg.keys[key]
	if !ok {
		return 0
	}
	log.expire(now.Add(-fg.window))
	if len(log.admitted) < fg.limit {
		return 0
	}

	// A slot frees up once the limit-th most recent request leaves the window.
	oldest := log.admitted[len(log.admitted)-fg.limit]
	return oldest.Add(fg.window).Sub(now)
}

// logFor returns the request log of key with expired entries removed. The mutex must be held.
func (fg *Floodgate) logFor(key string, now time.Time) *requestLog {
	log, ok := fg.keys[key]
	if !ok {
		log = &requestLog{admitted: make([]time.Time, 0, fg.limit+1)}
		fg.keys[key] = log
	}
	log.lastSeen = now
	log.expire(now.Add(-fg.window))
	return log
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.dropIdle()
		case <-fg.done:
			return
		}
	}
}

// dropIdle forgets keys that have not been seen for idleTimeout.
func (fg *Floodgate) dropIdle() {
	cutoff := fg.now().Add(-idleTimeout)

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	for key, log := range fg.keys {
		if log.lastSeen.Before(cutoff) {
			delete(fg.keys, key)
		}
	}
}

// Stats describes the floodgate for the readiness endpoint.
type Stats struct {
	ActiveKeys     int `json:"active_keys"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}

func (fg *Floodgate) Stats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveKeys:     len(fg.keys),
		LimitPerMinute: fg.limit,
		WindowSeconds:  int(fg.window.Seconds()),
	}
}
