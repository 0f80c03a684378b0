package connectors

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/cache"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// closeGrace is how long a replaced connector stays open for searches that
// picked it up before the swap
const closeGrace = 30 * time.Second

// Snapshot is one immutable generation of the connector configuration and
// the connectors built from it
type Snapshot struct {
	set        *models.ConnectorSet
	connectors map[string]ArchiveConnector
}

// Has reports whether id is configured in this snapshot
func (s *Snapshot) Has(id string) bool {
	_, ok := s.connectors[id]
	return ok
}

// Connector returns the connector for id
func (s *Snapshot) Connector(id string) (ArchiveConnector, error) {
	c, ok := s.connectors[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindUnknownConnector, "connectors", "unknown connector %q", id)
	}
	return c, nil
}

// IDs returns the configured connector ids, sorted
func (s *Snapshot) IDs() []string {
	return s.set.IDs()
}

// Set returns the configuration the snapshot was built from
func (s *Snapshot) Set() *models.ConnectorSet {
	return s.set
}

// Registry publishes connector snapshots. Readers always see one complete
// generation; Apply replaces it in a single swap.
type Registry struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes Apply
	cache   cache.Cache
	ttl     time.Duration
	build   func(models.ConnectorProperty) (ArchiveConnector, error)
	grace   time.Duration
	// generation numbers each applied set; guarded by mu. It starts from the
	// clock so a restarted process never reuses keys left in a shared cache.
	generation uint64
}

// NewRegistry creates an empty registry. Searches are cached in store for
// ttl when both are set.
func NewRegistry(store cache.Cache, ttl time.Duration) *Registry {
	r := &Registry{cache: store, ttl: ttl, build: New, grace: closeGrace, generation: uint64(time.Now().UnixNano())}
	r.current.Store(&Snapshot{set: models.EmptyConnectorSet(), connectors: map[string]ArchiveConnector{}})
	return r
}

// Snapshot returns the current generation
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Get returns the connector for id from the current generation
func (r *Registry) Get(id string) (ArchiveConnector, error) {
	return r.Snapshot().Connector(id)
}

// Apply builds every connector of set and publishes them together. When
// any connector fails to build, nothing is published and the previous
// generation stays in service.
func (r *Registry) Apply(set *models.ConnectorSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	generation := r.generation + 1
	built := make(map[string]ArchiveConnector, set.Len())
	for _, prop := range set.All() {
		c, err := r.build(prop)
		if err != nil {
			closeAll(built)
			return apperr.Wrap(apperr.KindConfiguration, "connectors", err)
		}
		built[prop.ID] = WithCache(Instrument(c), r.cache, r.ttl, generation)
	}

	r.generation = generation
	old := r.current.Swap(&Snapshot{set: set, connectors: built})

	log.Info().
		Int("connectors", len(built)).
		Uint64("generation", generation).
		Strs("ids", set.IDs()).
		Msg("Connector configuration applied")

	if old != nil && len(old.connectors) > 0 {
		time.AfterFunc(r.grace, func() { closeAll(old.connectors) })
	}
	return nil
}

// Ping tests the connector with the given id
func (r *Registry) Ping(ctx context.Context, id string) (*models.ConnectionStatus, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Ping(ctx)
}

// Close closes every connector of the current generation
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Swap(&Snapshot{set: models.EmptyConnectorSet(), connectors: map[string]ArchiveConnector{}})
	closeAll(old.connectors)
	return nil
}

func closeAll(connectors map[string]ArchiveConnector) {
	for id, c := range connectors {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("archive_id", id).Msg("Failed to close connector")
		}
	}
}
