package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/internal/metrics"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// Status is the rate-limit snapshot pushed to subscribers
type Status struct {
	IsRateLimited    bool      `json:"is_rate_limited"`
	Until            time.Time `json:"until,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// NotifyFunc receives rate-limit state changes
type NotifyFunc func(Status)

// Store persists the lockout so a process restart cannot evade it.
// Satisfied by services/cache.CacheService.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
	Delete(key string) error
}

// Gate wraps every outbound request attempt. One instance is shared by the
// bulk crawl and every concurrent per-item refresh; it is the only state
// mutated from multiple paths.
//
// An observed rate-limit response triggers a fixed-length lockout from the
// moment of detection. Server-provided retry-after windows are deliberately
// not trusted: retrying near the edge of a short window extends the ban.
type Gate struct {
	mu           sync.Mutex
	blockedUntil time.Time
	blockFor     time.Duration
	store        Store
	storeKey     string
	metrics      *metrics.Metrics
	log          *logger.Logger
	subscribers  []NotifyFunc
	window       []time.Time

	now func() time.Time
}

// rollingWindow bounds the diagnostic request counter
const rollingWindow = time.Minute

// NewGate creates a request gate with a fixed lockout duration.
// store may be nil when lockout persistence is not wanted (tests).
func NewGate(blockFor time.Duration, store Store, storeKey string, m *metrics.Metrics) *Gate {
	return &Gate{
		blockFor: blockFor,
		store:    store,
		storeKey: storeKey,
		metrics:  m,
		log:      logger.ForGate(),
		now:      time.Now,
	}
}

// Subscribe registers a callback for rate-limit state changes
func (g *Gate) Subscribe(fn NotifyFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers = append(g.subscribers, fn)
}

// Restore loads a persisted lockout at process start
func (g *Gate) Restore() {
	if g.store == nil {
		return
	}
	value, err := g.store.Get(g.storeKey)
	if err != nil {
		return
	}
	until, err := time.Parse(time.RFC3339, string(value))
	if err != nil || !until.After(g.now()) {
		return
	}

	g.mu.Lock()
	g.blockedUntil = until
	status := g.statusLocked()
	subs := g.subscribersLocked()
	g.mu.Unlock()

	g.log.Warn().
		Time("until", until).
		Msg("Restored rate-limit lockout from previous run")
	notifyAll(subs, status)
}

// Attempt rejects immediately, without a network call, while a lockout is
// active. Otherwise it records the attempt in the rolling request counter.
func (g *Gate) Attempt() error {
	g.mu.Lock()

	now := g.now()
	if !g.blockedUntil.IsZero() && !now.Before(g.blockedUntil) {
		// lockout elapsed, self-clear
		g.blockedUntil = time.Time{}
		status := g.statusLocked()
		subs := g.subscribersLocked()
		g.mu.Unlock()
		notifyAll(subs, status)
		g.mu.Lock()
	}

	if now.Before(g.blockedUntil) {
		remaining := g.blockedUntil.Sub(now)
		g.mu.Unlock()
		g.metrics.IncRequest("blocked")
		return perrors.NewRateLimit("gate", fmt.Sprintf("%d", int(remaining.Seconds())))
	}

	g.window = append(g.window, now)
	g.trimWindowLocked(now)
	g.mu.Unlock()

	g.metrics.IncRequest("attempt")
	return nil
}

// OnResult converts an observed rate-limit error into a lockout and clears
// a standing lockout on any subsequent successful response.
func (g *Gate) OnResult(err error) {
	switch {
	case err == nil:
		g.metrics.IncRequest("success")
		g.clearIfBlocked()
	case perrors.IsRateLimit(err):
		g.metrics.IncRequest("rate_limited")
		g.metrics.IncRateLimitHit()
		g.trigger()
	default:
		g.metrics.IncRequest("error")
	}
}

// trigger starts (or extends) the fixed lockout. Re-triggering while
// already blocked never shortens the remaining window.
func (g *Gate) trigger() {
	g.mu.Lock()
	until := g.now().Add(g.blockFor)
	if until.Before(g.blockedUntil) {
		g.mu.Unlock()
		return
	}
	g.blockedUntil = until
	status := g.statusLocked()
	subs := g.subscribersLocked()
	g.mu.Unlock()

	g.log.Warn().
		Time("until", until).
		Dur("block_for", g.blockFor).
		Msg("Rate limit observed, lockout engaged")

	g.persist(until)
	notifyAll(subs, status)
}

func (g *Gate) clearIfBlocked() {
	g.mu.Lock()
	if g.blockedUntil.IsZero() {
		g.mu.Unlock()
		return
	}
	g.blockedUntil = time.Time{}
	status := g.statusLocked()
	subs := g.subscribersLocked()
	g.mu.Unlock()

	g.log.Info().Msg("Successful response while blocked, lockout cleared")

	if g.store != nil {
		if err := g.store.Delete(g.storeKey); err != nil {
			g.log.Warn().Err(err).Msg("Failed to clear persisted lockout")
		}
	}
	notifyAll(subs, status)
}

func (g *Gate) persist(until time.Time) {
	if g.store == nil {
		return
	}
	value := []byte(until.Format(time.RFC3339))
	if err := g.store.Set(g.storeKey, value, g.blockFor); err != nil {
		g.log.Warn().Err(err).Msg("Failed to persist lockout")
	}
}

// Blocked reports whether a lockout is currently active
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.blockedUntil)
}

// Status returns the current rate-limit snapshot
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

// RequestRate returns the number of request attempts in the last minute.
// Diagnostic display only, no behavioral effect.
func (g *Gate) RequestRate() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trimWindowLocked(g.now())
	return len(g.window)
}

func (g *Gate) statusLocked() Status {
	now := g.now()
	if now.Before(g.blockedUntil) {
		return Status{
			IsRateLimited:    true,
			Until:            g.blockedUntil,
			RemainingSeconds: int(g.blockedUntil.Sub(now).Seconds()),
		}
	}
	return Status{}
}

func (g *Gate) subscribersLocked() []NotifyFunc {
	subs := make([]NotifyFunc, len(g.subscribers))
	copy(subs, g.subscribers)
	return subs
}

func (g *Gate) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-rollingWindow)
	idx := 0
	for idx < len(g.window) && g.window[idx].Before(cutoff) {
		idx++
	}
	g.window = g.window[idx:]
}

func notifyAll(subs []NotifyFunc, status Status) {
	for _, fn := range subs {
		fn(status)
	}
}
