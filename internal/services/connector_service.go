package services

import (
	"context"

	"github.com/otcheredev/ris-viewer-manager/internal/config"
	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/otcheredev/ris-viewer-manager/internal/metrics"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// AuditReader lists audit entries of an archive
type AuditReader interface {
	ListByArchive(ctx context.Context, archiveID string, limit, offset int) ([]models.AuditLog, error)
}

// ConnectorInfo describes a configured connector without its secrets
type ConnectorInfo struct {
	ID           string               `json:"id"`
	Type         models.ConnectorType `json:"type"`
	BasicURL     string               `json:"basic_url"`
	Capabilities []string             `json:"capabilities"`
}

// ConnectorService manages the connector configuration
type ConnectorService struct {
	registry *connectors.Registry
	path     string
	audit    AuditReader
}

// NewConnectorService creates a service reloading connectors from path
func NewConnectorService(registry *connectors.Registry, path string, audit AuditReader) *ConnectorService {
	return &ConnectorService{registry: registry, path: path, audit: audit}
}

// List returns the configured connectors ordered by id
func (s *ConnectorService) List() []ConnectorInfo {
	snap := s.registry.Snapshot()
	out := make([]ConnectorInfo, 0, len(snap.IDs()))
	for _, prop := range snap.Set().All() {
		info := ConnectorInfo{ID: prop.ID, Type: prop.Type, BasicURL: prop.Wado.BasicURL}
		if c, err := snap.Connector(prop.ID); err == nil {
			info.Capabilities = c.Capabilities()
		}
		out = append(out, info)
	}
	return out
}

// Reload reads the connector file and replaces the whole connector set. On
// any error the current set stays in service.
func (s *ConnectorService) Reload(ctx context.Context) ([]ConnectorInfo, error) {
	set, err := config.LoadConnectors(s.path)
	if err == nil {
		err = s.registry.Apply(set)
	}
	if err != nil {
		metrics.ConnectorRefreshes.WithLabelValues("failure").Inc()
		log.Error().Err(err).Str("path", s.path).Msg("Connector reload failed, keeping current connectors")
		return nil, err
	}

	metrics.ConnectorRefreshes.WithLabelValues("success").Inc()
	return s.List(), nil
}

// Test pings one connector
func (s *ConnectorService) Test(ctx context.Context, id string) (*models.ConnectionStatus, error) {
	return s.registry.Ping(ctx, id)
}

// Audit lists the latest audit entries of a connector
func (s *ConnectorService) Audit(ctx context.Context, id string, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.registry.Get(id); err != nil {
		return nil, err
	}
	return s.audit.ListByArchive(ctx, id, limit, offset)
}
