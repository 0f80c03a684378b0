package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/cache"
	"github.com/otcheredev/ris-viewer-manager/internal/metrics"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// cachedPage is the cached form of one search response
type cachedPage struct {
	Results      []models.ArchiveQueryResult `json:"results"`
	Continuation *models.Continuation        `json:"continuation,omitempty"`
}

// cached serves repeated searches from a cache. Failed searches are never
// cached and cache failures only cost a round trip to the archive.
type cached struct {
	ArchiveConnector
	cache      cache.Cache
	ttl        time.Duration
	generation uint64
}

// WithCache wraps c so successful searches are cached for ttl. Entries are
// keyed by generation, so connectors built from different configurations of
// the same archive never read each other's pages. A nil cache or a
// non-positive ttl returns c unchanged.
func WithCache(c ArchiveConnector, store cache.Cache, ttl time.Duration, generation uint64) ArchiveConnector {
	if store == nil || ttl <= 0 {
		return c
	}
	return &cached{ArchiveConnector: c, cache: store, ttl: ttl, generation: generation}
}

func (c *cached) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error) {
	key := cache.SearchKey(c.ID(), c.generation, criteria)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var p cachedPage
		if err := json.Unmarshal(raw, &p); err == nil {
			metrics.SearchCache.WithLabelValues("hit").Inc()
			return p.Results, p.Continuation, nil
		}
		log.Warn().Str("archive_id", c.ID()).Msg("Discarding unreadable cached search")
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Warn().Err(err).Str("archive_id", c.ID()).Msg("Search cache read failed")
	}
	metrics.SearchCache.WithLabelValues("miss").Inc()

	results, cont, err := c.ArchiveConnector.Search(ctx, criteria)
	if err != nil {
		return nil, nil, err
	}

	raw, err = json.Marshal(cachedPage{Results: results, Continuation: cont})
	if err == nil {
		err = c.cache.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		log.Warn().Err(err).Str("archive_id", c.ID()).Msg("Search cache write failed")
	}

	return results, cont, nil
}

// Close drops the searches cached by this generation before closing the
// connector. Pages of newer generations are left alone.
func (c *cached) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cache.Clear(ctx, cache.GenerationPrefix(c.ID(), c.generation)+"*"); err != nil {
		log.Warn().Err(err).Str("archive_id", c.ID()).Msg("Failed to clear search cache")
	}
	return c.ArchiveConnector.Close()
}
