package version

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/metrics"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

type entry struct {
	release models.MinimalReleaseVersion
	parsed  Version
	minimal Version
}

// Table is an immutable, release-ordered snapshot of published versions
type Table struct {
	entries []entry
}

// NewTable validates and orders the published versions
func NewTable(rows []models.MinimalReleaseVersion) (*Table, error) {
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		release, err := Parse(row.ReleaseVersion)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, "version table", err)
		}
		minimal, err := Parse(row.MinimalVersion)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, "version table", err)
		}
		entries = append(entries, entry{release: row, parsed: release, minimal: minimal})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].parsed.Compare(entries[j].parsed); c != 0 {
			return c < 0
		}
		return entries[i].release.ReleaseVersion < entries[j].release.ReleaseVersion
	})
	return &Table{entries: entries}, nil
}

// Len returns the number of published releases
func (t *Table) Len() int {
	return len(t.entries)
}

// Latest returns the newest published release
func (t *Table) Latest() (models.MinimalReleaseVersion, bool) {
	if len(t.entries) == 0 {
		return models.MinimalReleaseVersion{}, false
	}
	return t.entries[len(t.entries)-1].release, true
}

// floor returns the entry with the highest release <= v. A client older than
// every release still matches the oldest release whose minimal version it
// satisfies.
func (t *Table) floor(v Version) (entry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].parsed.Compare(v) > 0
	})
	if i > 0 {
		return t.entries[i-1], true
	}
	for _, e := range t.entries {
		if e.minimal.Compare(v) <= 0 {
			return e, true
		}
	}
	return entry{}, false
}

// Store holds the current table and swaps it as a whole on refresh
type Store struct {
	table atomic.Pointer[Table]
}

// NewStore creates a store with an empty table
func NewStore() *Store {
	s := &Store{}
	s.table.Store(&Table{})
	return s
}

// Load returns the current snapshot
func (s *Store) Load() *Table {
	return s.table.Load()
}

// Swap replaces the snapshot
func (s *Store) Swap(t *Table) {
	s.table.Store(t)
}

// Loader reads the published versions
type Loader interface {
	ListReleaseVersions(ctx context.Context) ([]models.MinimalReleaseVersion, error)
}

// Refresh reloads the table from loader and swaps it in
func (s *Store) Refresh(ctx context.Context, loader Loader) error {
	rows, err := loader.ListReleaseVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load release versions: %w", err)
	}
	table, err := NewTable(rows)
	if err != nil {
		return err
	}
	s.Swap(table)
	log.Debug().Int("releases", table.Len()).Msg("Version table refreshed")
	return nil
}

// RunRefresher refreshes the table every interval until ctx is done
func (s *Store) RunRefresher(ctx context.Context, loader Loader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Refresh(ctx, loader); err != nil {
				log.Warn().Err(err).Msg("Version table refresh failed, keeping previous table")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Compatibility is the answer to a client version check
type Compatibility struct {
	ClientVersion   string                       `json:"client_version"`
	Qualifier       string                       `json:"qualifier,omitempty"`
	Release         models.MinimalReleaseVersion `json:"release"`
	Latest          models.MinimalReleaseVersion `json:"latest"`
	UpgradeRequired bool                         `json:"upgrade_required"`
}

// Resolver answers version compatibility questions against a Store
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver reading from store
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveMinimalVersion returns the published entry with the highest release
// not newer than clientVersion. The qualifier is ignored for the comparison.
func (r *Resolver) ResolveMinimalVersion(clientVersion string) (models.MinimalReleaseVersion, error) {
	e, _, err := r.resolve(clientVersion)
	if err != nil {
		return models.MinimalReleaseVersion{}, err
	}
	return e.release, nil
}

// Check resolves clientVersion and reports whether the client is older than
// the minimal version required by the newest release.
func (r *Resolver) Check(clientVersion string) (*Compatibility, error) {
	e, table, err := r.resolve(clientVersion)
	if err != nil {
		metrics.VersionChecks.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}

	client, _ := Parse(clientVersion)
	latest := table.entries[len(table.entries)-1]
	compat := &Compatibility{
		ClientVersion:   client.Numeric(),
		Qualifier:       client.Qualifier,
		Release:         e.release,
		Latest:          latest.release,
		UpgradeRequired: client.Compare(latest.minimal) < 0,
	}

	outcome := "compatible"
	if compat.UpgradeRequired {
		outcome = "upgrade_required"
	}
	metrics.VersionChecks.WithLabelValues(outcome).Inc()
	return compat, nil
}

func (r *Resolver) resolve(clientVersion string) (entry, *Table, error) {
	client, err := Parse(clientVersion)
	if err != nil {
		return entry{}, nil, apperr.Wrap(apperr.KindValidation, "version", err)
	}

	table := r.store.Load()
	e, ok := table.floor(client)
	if !ok {
		return entry{}, nil, apperr.Newf(apperr.KindNoCompatibleVersion, "version",
			"client version %s is older than every published release, upgrade required", client.Numeric())
	}
	return e, table, nil
}
