package http

import (
	"sync"
	"time"
)

const (
	rateLimit      = 60
	rateWindow     = time.Minute
	rateSweepEvery = 5 * time.Minute
	rateStaleAfter = 10 * time.Minute
)

// rateLimiter caps mutating requests per client IP. A client gets a
// fresh window after a minute of silence; within a window at most
// rateLimit requests pass.
type rateLimiter struct {
	mu   sync.Mutex
	seen map[string]*visitor
	done chan struct{}
	once sync.Once
}

type visitor struct {
	seenAt time.Time
	count  int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		seen: make(map[string]*visitor),
		done: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v := rl.seen[clientIP]
	if v == nil || now.Sub(v.seenAt) > rateWindow {
		rl.seen[clientIP] = &visitor{seenAt: now, count: 1}
		return true
	}
	v.count++
	v.seenAt = now
	return v.count <= rateLimit
}

func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.done:
			return
		}
	}
}

// sweep forgets clients that have been quiet long enough that their
// window no longer matters.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, v := range rl.seen {
		if now.Sub(v.seenAt) > rateStaleAfter {
			delete(rl.seen, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() {
		close(rl.done)
	})
}
