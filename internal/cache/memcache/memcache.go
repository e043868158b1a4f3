// Package memcache holds per-instance implementations of the soft throttles.
// They are fine to lose on restart and may differ across instances; the
// security-critical lockout never lives here.
//
// Keys come from unauthenticated input, so both types drop keys once their
// window has passed and sweep the whole map at most once per window.
package memcache

import (
	"context"
	"sync"
	"time"
)

type SlidingWindow struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time

	// maxWindow is the largest window any caller asked for; a key older
	// than that can't count against anyone.
	maxWindow time.Duration
	lastSweep time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{hits: make(map[string][]time.Time), now: time.Now}
}

func (s *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	s.now = now
	return s
}

func (s *SlidingWindow) Allow(_ context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if window > s.maxWindow {
		s.maxWindow = window
	}
	s.sweep(now)

	from := now.Add(-window)
	kept := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(from) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.hits[key] = kept

	n := int64(len(kept))
	return n <= limit, n, nil
}

// Len reports how many keys are tracked.
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func (s *SlidingWindow) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.maxWindow {
		return
	}
	s.lastSweep = now
	from := now.Add(-s.maxWindow)
	for k, ts := range s.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(from) {
			delete(s.hits, k)
		}
	}
}

// PingGate is the in-process counterpart of rediscache.PingGate, for
// single-instance deployments.
type PingGate struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time

	maxInterval time.Duration
	lastSweep   time.Time
}

func NewPingGate() *PingGate {
	return &PingGate{last: make(map[string]time.Time), now: time.Now}
}

func (g *PingGate) WithClock(now func() time.Time) *PingGate {
	g.now = now
	return g
}

func (g *PingGate) Acquire(_ context.Context, key string, interval time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if interval > g.maxInterval {
		g.maxInterval = interval
	}
	if now.Sub(g.lastSweep) >= g.maxInterval {
		g.lastSweep = now
		for k, t := range g.last {
			if now.Sub(t) >= g.maxInterval {
				delete(g.last, k)
			}
		}
	}

	if t, ok := g.last[key]; ok && now.Sub(t) < interval {
		return false, nil
	}
	g.last[key] = now
	return true, nil
}

func (g *PingGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
