package launch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/metrics"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// Repository reads the targets and launches a resolution needs
type Repository interface {
	FindTargetsFor(ctx context.Context, user, host string) ([]models.Target, error)
	FindLaunches(ctx context.Context, filter Filter) ([]models.Launch, error)
}

// Request identifies who is launching and which configs are wanted
type Request struct {
	User    string   `json:"user"`
	Host    string   `json:"host"`
	Configs []string `json:"configs,omitempty"`
}

// Resolution is the effective configuration for a request
type Resolution struct {
	Targets    []models.Target  `json:"targets"`
	Effective  *Effective       `json:"-"`
	Entries    []Entry          `json:"entries"`
	Conflicts  []Conflict       `json:"conflicts,omitempty"`
	Duplicates []DuplicateGroup `json:"duplicates,omitempty"`
}

// ConflictError returns a DuplicatePreference error describing the
// conflicts, or nil when there are none. It is informational: the
// resolution itself is still valid.
func (r *Resolution) ConflictError() error {
	if len(r.Conflicts) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		pairs = append(pairs, fmt.Sprintf("%s/%s (%s: %s)", c.Config, c.Preferred, c.TargetType, strings.Join(c.Targets, ", ")))
	}
	return apperr.Newf(apperr.KindDuplicatePreference, "launch", "conflicting preferences: %s", strings.Join(pairs, "; "))
}

// Resolver merges launch preferences across target scopes
type Resolver struct {
	repo Repository
}

// NewResolver creates a resolver backed by repo
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve computes the effective configuration of a user on a host
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if strings.TrimSpace(req.User) == "" && strings.TrimSpace(req.Host) == "" {
		return nil, apperr.New(apperr.KindValidation, "launch", "user or host is required")
	}

	targets, err := r.repo.FindTargetsFor(ctx, req.User, req.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	filter := Filter{Targets: ids}
	if len(req.Configs) > 0 {
		filter.Configs = req.Configs
	}

	launches, err := r.repo.FindLaunches(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load launches: %w", err)
	}

	sorted := SortByTargetOrder(Match(launches, filter))
	eff, conflicts := Merge(sorted)
	res := &Resolution{
		Targets:    targets,
		Effective:  eff,
		Entries:    eff.Entries(),
		Conflicts:  conflicts,
		Duplicates: FindDuplicates(sorted),
	}

	metrics.LaunchResolutions.Inc()
	if len(conflicts) > 0 {
		metrics.DuplicatePreferences.Add(float64(len(conflicts)))
		log.Warn().
			Err(res.ConflictError()).
			Str("user", req.User).
			Str("host", req.Host).
			Msg("Equal precedence preferences need administrative review")
	}

	log.Debug().
		Str("user", req.User).
		Str("host", req.Host).
		Int("targets", len(targets)).
		Int("launches", len(sorted)).
		Int("effective", eff.Len()).
		Msg("Launch resolved")

	return res, nil
}

// Duplicates lists every pair filled by more than one launch among the
// launches passing filter
func (r *Resolver) Duplicates(ctx context.Context, filter Filter) ([]DuplicateGroup, error) {
	launches, err := r.repo.FindLaunches(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load launches: %w", err)
	}
	return FindDuplicates(Match(launches, filter)), nil
}
