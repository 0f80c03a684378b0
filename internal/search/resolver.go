package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Registry hands out the current connector generation
type Registry interface {
	Snapshot() *connectors.Snapshot
}

// ArchiveOutcome is the result of one archive: its results or its error
type ArchiveOutcome struct {
	ArchiveID    string
	Results      []models.ArchiveQueryResult
	Continuation *models.Continuation
	Err          error
	Duration     time.Duration
}

// OK reports whether the archive answered
func (o ArchiveOutcome) OK() bool {
	return o.Err == nil
}

func (o ArchiveOutcome) MarshalJSON() ([]byte, error) {
	type failure struct {
		Kind      apperr.Kind `json:"kind"`
		Message   string      `json:"message"`
		Retryable bool        `json:"retryable"`
	}
	out := struct {
		ArchiveID    string                      `json:"archive_id"`
		Status       string                      `json:"status"`
		Results      []models.ArchiveQueryResult `json:"results"`
		Continuation *models.Continuation        `json:"continuation,omitempty"`
		Error        *failure                    `json:"error,omitempty"`
		DurationMS   int64                       `json:"duration_ms"`
	}{
		ArchiveID:    o.ArchiveID,
		Status:       "ok",
		Results:      o.Results,
		Continuation: o.Continuation,
		DurationMS:   o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		out.Status = "error"
		out.Results = []models.ArchiveQueryResult{}
		out.Error = &failure{Kind: apperr.KindOf(o.Err), Message: o.Err.Error(), Retryable: apperr.Retryable(o.Err)}
	}
	return json.Marshal(out)
}

// Outcome maps every requested archive id to its outcome
type Outcome map[string]ArchiveOutcome

// Failed returns the ids of the archives that failed, sorted
func (o Outcome) Failed() []string {
	var ids []string
	for id, a := range o {
		if !a.OK() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Total returns the number of results across all archives
func (o Outcome) Total() int {
	n := 0
	for _, a := range o {
		n += len(a.Results)
	}
	return n
}

// Options tunes a Resolver
type Options struct {
	// Timeout bounds a whole request; zero leaves it to the caller's context
	Timeout time.Duration
	// Concurrency bounds the archives queried at once; zero means unbounded
	Concurrency int
}

// Resolver validates a search and fans it out over the named archives
type Resolver struct {
	registry Registry
	opts     Options
}

// NewResolver creates a resolver reading connectors from registry
func NewResolver(registry Registry, opts Options) *Resolver {
	return &Resolver{registry: registry, opts: opts}
}

// Resolve validates criteria, then queries every named archive
// concurrently. A failing archive never cancels the others; its error is
// reported in its outcome. When ctx or the request timeout ends first,
// every pending query is cancelled and the request fails as a whole.
func (r *Resolver) Resolve(ctx context.Context, criteria models.SearchCriteria) (Outcome, error) {
	criteria = Normalize(criteria)

	// one generation serves both validation and execution
	snap := r.registry.Snapshot()
	if err := Validate(criteria, snap); err != nil {
		return nil, err
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	outcomes := make([]ArchiveOutcome, len(criteria.Archive))

	var g errgroup.Group
	if r.opts.Concurrency > 0 {
		g.SetLimit(r.opts.Concurrency)
	}
	for i, id := range criteria.Archive {
		g.Go(func() error {
			outcomes[i] = r.query(ctx, snap, id, criteria)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn().
			Err(err).
			Strs("archives", criteria.Archive).
			Msg("Search abandoned, discarding partial results")
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make(Outcome, len(outcomes))
	for _, o := range outcomes {
		out[o.ArchiveID] = o
	}

	log.Debug().
		Strs("archives", criteria.Archive).
		Strs("failed", out.Failed()).
		Int("num_results", out.Total()).
		Msg("Search resolved")

	return out, nil
}

func (r *Resolver) query(ctx context.Context, snap *connectors.Snapshot, id string, criteria models.SearchCriteria) ArchiveOutcome {
	start := time.Now()
	o := ArchiveOutcome{ArchiveID: id}

	c, err := snap.Connector(id)
	if err != nil {
		o.Err = err
		return o
	}

	results, cont, err := c.Search(ctx, criteria)
	o.Duration = time.Since(start)
	if err != nil {
		o.Err = err
		return o
	}

	o.Results = Dedupe(results)
	o.Continuation = cont
	return o
}

// Dedupe drops results repeating the deepest UID of an earlier result,
// preserving order. Results without any UID are kept.
func Dedupe(results []models.ArchiveQueryResult) []models.ArchiveQueryResult {
	seen := make(map[string]bool, len(results))
	out := make([]models.ArchiveQueryResult, 0, len(results))
	for _, r := range results {
		key := r.Key()
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, r)
	}
	return out
}
