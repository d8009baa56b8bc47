// Package dedup suppresses duplicate log entries caused by multi-step
// operations: a single "create and publish" gesture frequently produces two
// physical lifecycle events against the same document.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-oplog/pkg/reqctx"
	"github.com/goliatone/go-oplog/pkg/types"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultTTL is the cross-request suppression window.
	DefaultTTL = 5 * time.Second
	// DefaultMaxEntries triggers eviction of stale keys once exceeded.
	DefaultMaxEntries = 200
)

// Config wires guard construction.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	Clock      types.Clock
}

// Guard provides two-layer duplicate suppression: a per-request set carried on
// the ambient request context, and a short-lived process-wide map keyed by
// operation scope. The map is a concurrent structure; lifecycle hooks may run
// on arbitrary goroutines.
type Guard struct {
	ttl        time.Duration
	maxEntries int
	clock      types.Clock
	seen       *xsync.MapOf[string, int64]
}

// New constructs a guard with defaults applied.
func New(cfg Config) *Guard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Guard{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		seen:       xsync.NewMapOf[string, int64](),
	}
}

// Key builds the suppression scope key for one document operation.
func Key(modelUID, docKey string, class types.ActionClass) string {
	return strings.Join([]string{modelUID, docKey, string(class)}, "|")
}

// Suppress records the key and reports whether the caller must skip logging:
// true when the same key already fired within this request, or within the TTL
// window across requests.
func (g *Guard) Suppress(ctx context.Context, key string) bool {
	if g == nil || key == "" {
		return false
	}
	if req, ok := reqctx.FromContext(ctx); ok {
		if !req.FirstSeen(key) {
			return true
		}
	}

	now := g.clock.Now().UnixNano()
	if last, ok := g.seen.Load(key); ok && now-last < g.ttl.Nanoseconds() {
		return true
	}
	g.seen.Store(key, now)
	g.evictStale(now)
	return false
}

// evictStale drops expired keys once the map outgrows the size threshold.
func (g *Guard) evictStale(now int64) {
	if g.seen.Size() <= g.maxEntries {
		return
	}
	cutoff := now - g.ttl.Nanoseconds()
	g.seen.Range(func(key string, last int64) bool {
		if last < cutoff {
			g.seen.Delete(key)
		}
		return true
	})
}
