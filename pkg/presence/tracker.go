package presence

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/skillmesh/mesh-node/pkg/models"
)

// DialFunc asks the transport to establish a connection to a peer address.
// Dialing is best effort; errors are ignored beyond a debug log.
type DialFunc func(address string) error

// Tracker maintains the table of currently reachable peers, driven purely by
// heartbeat receipt. A record lives for one liveness timeout past its last
// heartbeat and is then evicted outright; there is no retained offline state.
// This is a plain liveness detector, not membership consensus: a partitioned
// peer disappears within one timeout window and reappears on its next
// heartbeat.
type Tracker struct {
	localID string
	cache   *ttlcache.Cache[string, *models.PeerPresence]
	dial    DialFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDialer makes the tracker ask the transport to reach out to addresses
// carried by heartbeats from previously unseen peers.
func WithDialer(dial DialFunc) Option {
	return func(t *Tracker) {
		t.dial = dial
	}
}

// New creates a tracker whose records expire after the given liveness
// timeout. The cache's janitor owns the eviction sweep.
func New(localID string, livenessTimeout time.Duration, opts ...Option) *Tracker {
	cache := ttlcache.New[string, *models.PeerPresence](
		ttlcache.WithTTL[string, *models.PeerPresence](livenessTimeout),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *models.PeerPresence]) {
		if reason == ttlcache.EvictionReasonExpired {
			slog.Info("peer presence expired", "peer", item.Key())
		}
	})
	go cache.Start()

	t := &Tracker{localID: localID, cache: cache}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe ingests a heartbeat. The peer's record is inserted or refreshed
// with lastSeen = now. Heartbeats carrying our own ID are ignored (the
// broadcast channel echoes our traffic back to us).
func (t *Tracker) Observe(p *models.PeerPresence) {
	if p == nil || p.ID == "" || p.ID == t.localID {
		return
	}
	known := t.cache.Has(p.ID)
	rec := *p
	rec.LastSeen = time.Now()
	t.cache.Set(p.ID, &rec, ttlcache.DefaultTTL)

	if !known && t.dial != nil {
		for _, addr := range rec.Addresses {
			if err := t.dial(addr); err != nil {
				slog.Debug("peer dial skipped", "peer", rec.ID, "address", addr, "error", err)
			}
		}
	}
}

// Active returns the currently live peers, ordered by ID.
func (t *Tracker) Active() []*models.PeerPresence {
	items := t.cache.Items()
	out := make([]*models.PeerPresence, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		rec := *item.Value()
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count reports the number of live peers.
func (t *Tracker) Count() int {
	return len(t.Active())
}

// Stop halts the eviction janitor.
func (t *Tracker) Stop() {
	t.cache.Stop()
}
