package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxLocalKeys = 10000
	localIdleTTL = 10 * time.Minute
)

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local is an in-process token bucket per key. It absorbs bursts from one origin before
// any store is touched. A nil *Local allows everything.
type Local struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	entries map[string]*localEntry
	now     func() time.Time
}

// NewLocal returns a per-key limiter refilling perSecond tokens up to burst.
// A non-positive perSecond yields nil.
func NewLocal(perSecond float64, burst int) *Local {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Local{
		perSec:  rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*localEntry),
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (l *Local) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= maxLocalKeys {
			l.evictLocked(now)
		}
		e = &localEntry{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func (l *Local) evictLocked(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > localIdleTTL {
			delete(l.entries, k)
		}
	}
	// Still full: drop everything rather than grow without bound.
	if len(l.entries) >= maxLocalKeys {
		l.entries = make(map[string]*localEntry)
	}
}
