package vtcache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Watcher periodically runs the cache's feed reconciliation.
type Watcher struct {
	cache    *Cache
	interval time.Duration
}

// NewWatcher creates a Watcher checking the feed at the given interval.
func NewWatcher(cache *Cache, interval time.Duration) *Watcher {
	return &Watcher{cache: cache, interval: interval}
}

// Run blocks, checking the feed every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	logger := log.With().Str("component", "feedwatcher").Logger()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cache.CheckFeed(ctx); err != nil {
				logger.Warn().Err(err).Msg("feed check failed")
			}
		}
	}
}
