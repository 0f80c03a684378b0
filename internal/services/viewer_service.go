package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/launch"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/otcheredev/ris-viewer-manager/internal/search"
	"github.com/otcheredev/ris-viewer-manager/internal/version"
	"github.com/rs/zerolog/log"
)

// LaunchResolver resolves effective launch preferences
type LaunchResolver interface {
	Resolve(ctx context.Context, req launch.Request) (*launch.Resolution, error)
	Duplicates(ctx context.Context, filter launch.Filter) ([]launch.DuplicateGroup, error)
}

// Searcher fans a search out over archives
type Searcher interface {
	Resolve(ctx context.Context, criteria models.SearchCriteria) (search.Outcome, error)
}

// VersionChecker answers client version compatibility
type VersionChecker interface {
	Check(clientVersion string) (*version.Compatibility, error)
}

// AuditWriter stores audit entries
type AuditWriter interface {
	CreateBatch(ctx context.Context, logs []models.AuditLog) error
}

// LaunchRequest is a viewer launch: who launches where, which configs, the
// installed client version and optionally the studies to open
type LaunchRequest struct {
	User          string                 `json:"user"`
	Host          string                 `json:"host"`
	Configs       []string               `json:"configs,omitempty"`
	ClientVersion string                 `json:"client_version,omitempty"`
	Search        *models.SearchCriteria `json:"search,omitempty"`
}

// LaunchResponse carries everything a viewer needs to start
type LaunchResponse struct {
	Preferences map[string]map[string]string `json:"preferences"`
	Entries     []launch.Entry               `json:"entries"`
	Conflicts   []launch.Conflict            `json:"conflicts,omitempty"`
	Duplicates  []launch.DuplicateGroup      `json:"duplicates,omitempty"`
	Archives    search.Outcome               `json:"archives,omitempty"`
	Version     *version.Compatibility       `json:"version,omitempty"`
}

// ViewerService runs the launch flow: preferences, archive search, then the
// resource version the client must use
type ViewerService struct {
	launches LaunchResolver
	searcher Searcher
	versions VersionChecker
	audit    AuditWriter
}

// NewViewerService creates a new viewer service
func NewViewerService(launches LaunchResolver, searcher Searcher, versions VersionChecker, audit AuditWriter) *ViewerService {
	return &ViewerService{
		launches: launches,
		searcher: searcher,
		versions: versions,
		audit:    audit,
	}
}

// Launch resolves the effective configuration of the request
func (s *ViewerService) Launch(ctx context.Context, req LaunchRequest) (*LaunchResponse, error) {
	res, err := s.launches.Resolve(ctx, launch.Request{User: req.User, Host: req.Host, Configs: req.Configs})
	if err != nil {
		return nil, err
	}

	resp := &LaunchResponse{
		Preferences: res.Effective.ByConfig(),
		Entries:     res.Entries,
		Conflicts:   res.Conflicts,
		Duplicates:  res.Duplicates,
	}

	if req.Search != nil {
		outcome, err := s.search(ctx, *req.Search, who(req.User, req.Host), "launch")
		if err != nil {
			return nil, err
		}
		resp.Archives = outcome
	}

	if strings.TrimSpace(req.ClientVersion) != "" {
		compat, err := s.versions.Check(req.ClientVersion)
		if err != nil {
			return nil, err
		}
		resp.Version = compat
	}

	log.Info().
		Str("user", req.User).
		Str("host", req.Host).
		Int("preferences", len(resp.Entries)).
		Int("conflicts", len(resp.Conflicts)).
		Msg("Viewer launch resolved")

	return resp, nil
}

// Search runs a standalone archive search on behalf of requester
func (s *ViewerService) Search(ctx context.Context, criteria models.SearchCriteria, requester string) (search.Outcome, error) {
	return s.search(ctx, criteria, requester, "search")
}

// CheckVersion reports the compatibility of a client version
func (s *ViewerService) CheckVersion(clientVersion string) (*version.Compatibility, error) {
	return s.versions.Check(clientVersion)
}

// Duplicates lists launches sharing a (config, preferred) pair
func (s *ViewerService) Duplicates(ctx context.Context, filter launch.Filter) ([]launch.DuplicateGroup, error) {
	return s.launches.Duplicates(ctx, filter)
}

func (s *ViewerService) search(ctx context.Context, criteria models.SearchCriteria, requester, action string) (search.Outcome, error) {
	outcome, err := s.searcher.Resolve(ctx, criteria)
	if err != nil {
		return nil, err
	}
	s.record(ctx, criteria, outcome, requester, action)
	return outcome, nil
}

// record writes one audit entry per archive. Audit failures never fail the
// request.
func (s *ViewerService) record(ctx context.Context, criteria models.SearchCriteria, outcome search.Outcome, requester, action string) {
	if s.audit == nil {
		return
	}

	requestID := chimiddleware.GetReqID(ctx)
	resource := firstNonEmpty(criteria.InstanceUID, criteria.SeriesUID, criteria.StudyUID, criteria.AccessionNumber, criteria.PatientID)

	logs := make([]models.AuditLog, 0, len(outcome))
	for id, o := range outcome {
		entry := models.AuditLog{
			RequestID:   requestID,
			Target:      requester,
			Action:      action,
			ArchiveID:   id,
			ResourceUID: resource,
			Status:      "success",
			ResultCount: len(o.Results),
			Duration:    o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			entry.Status = "failure"
			entry.ErrorKind = string(apperr.KindOf(o.Err))
			entry.ErrorMessage = o.Err.Error()
		}
		logs = append(logs, entry)
	}

	// the request context may already be finishing
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.CreateBatch(auditCtx, logs); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to write audit log")
	}
}

func who(user, host string) string {
	switch {
	case user != "" && host != "":
		return fmt.Sprintf("%s@%s", user, host)
	case user != "":
		return user
	default:
		return host
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
