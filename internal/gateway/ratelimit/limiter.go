// Package ratelimit bounds how many messages a single connection may send in
// a fixed window.
package ratelimit

import (
	"sync"
	"time"
)

type state struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Limiter keeps one window per connection id. Each connection's state is
// only touched by that connection's loop; the mutex guards the map itself.
type Limiter struct {
	mu    sync.Mutex
	conns map[string]*state
	now   func() time.Time
}

// New returns an empty Limiter. A nil clock falls back to time.Now.
func New(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{conns: make(map[string]*state), now: now}
}

func (l *Limiter) get(connID string) *state {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.conns[connID]
	if !ok {
		s = &state{}
		l.conns[connID] = s
	}
	return s
}

// CheckAndConsume counts one message for connID and reports whether it is
// within max messages per window. Once the limit is exceeded every message
// is rejected without being counted until the window ends.
func (l *Limiter) CheckAndConsume(connID string, max int, window time.Duration) bool {
	s := l.get(connID)
	now := l.now()

	if now.Before(s.blockedUntil) {
		return false
	}
	if now.Sub(s.windowStart) >= window {
		s.count = 0
		s.windowStart = now
	}
	s.count++
	if s.count > max {
		s.blockedUntil = s.windowStart.Add(window)
		return false
	}
	return true
}

// Count returns the messages counted in connID's current window.
func (l *Limiter) Count(connID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.conns[connID]; ok {
		return s.count
	}
	return 0
}

// Release drops all state for connID.
func (l *Limiter) Release(connID string) {
	l.mu.Lock()
	delete(l.conns, connID)
	l.mu.Unlock()
}

// Len reports how many connections have state.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}
