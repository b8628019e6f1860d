package fetch

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// hostGate bundles the per-host controls: concurrency ceiling, pacing,
// and penalty-box expiry. One mutex guards all three maps and is never
// held across an await point; the per-URL state table is separate,
// under Fetcher's own lock.
type hostGate struct {
	mu        sync.Mutex
	inFlight  map[string]int
	limiters  map[string]*rate.Limiter
	penalties map[string]time.Time
	maxPerHost int
}

func newHostGate(maxPerHost int) *hostGate {
	return &hostGate{
		inFlight:   make(map[string]int),
		limiters:   make(map[string]*rate.Limiter),
		penalties:  make(map[string]time.Time),
		maxPerHost: maxPerHost,
	}
}

// limiterFor lazily creates a token-bucket limiter for host, one
// request per 200ms with a burst matching maxPerHost, so a tick that
// dequeues several URLs for the same host still can't burst them at
// the origin simultaneously.
func (g *hostGate) limiterFor(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(200*time.Millisecond), g.maxPerHost)
		g.limiters[host] = l
	}
	return l
}

// penalize starts a fixed exclusion window for host, computed via
// backoff.ConstantBackOff so every penalty severity the fetcher
// applies (low/med/high exclusion) goes through the same backoff
// primitive rather than ad hoc duration arithmetic.
func (g *hostGate) penalize(host string, d time.Duration) {
	wait := backoff.NewConstantBackOff(d).NextBackOff()
	g.mu.Lock()
	g.penalties[host] = time.Now().Add(wait)
	g.mu.Unlock()
}

// penaltyActive reports whether host is still within its exclusion
// window; expiry releases exactly when now >= until (spec.md section
// 8, invariant 8).
func (g *hostGate) penaltyActive(host string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.penalties[host]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(g.penalties, host)
		return false
	}
	return true
}

// tryAcquire reserves one in-flight slot for host if under the
// concurrency ceiling, returning whether it succeeded.
func (g *hostGate) tryAcquire(host string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[host] >= g.maxPerHost {
		return false
	}
	g.inFlight[host]++
	return true
}

func (g *hostGate) release(host string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[host] > 0 {
		g.inFlight[host]--
	}
}
