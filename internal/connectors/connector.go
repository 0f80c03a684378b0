package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/metrics"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// ArchiveConnector defines the interface that all archive connectors must implement
type ArchiveConnector interface {
	// Search runs the criteria against the archive and returns normalized
	// results, plus a continuation when the archive truncated the page.
	Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error)

	// Connection management
	Ping(ctx context.Context) (*models.ConnectionStatus, error)
	Close() error

	// Connector info
	ID() string
	Type() models.ConnectorType
	Capabilities() []string
}

// builder creates the connector variant for one connector type
type builder func(prop models.ConnectorProperty) (ArchiveConnector, error)

var builders = map[models.ConnectorType]builder{
	models.ConnectorTypeDB: func(prop models.ConnectorProperty) (ArchiveConnector, error) {
		return NewDBConnector(prop)
	},
	models.ConnectorTypeDICOM: func(prop models.ConnectorProperty) (ArchiveConnector, error) {
		return NewDIMSEConnector(prop)
	},
	models.ConnectorTypeDICOMWeb: func(prop models.ConnectorProperty) (ArchiveConnector, error) {
		return NewDICOMWebConnector(prop)
	},
}

// New builds the connector variant selected by prop.Type
func New(prop models.ConnectorProperty) (ArchiveConnector, error) {
	if err := prop.Validate(); err != nil {
		return nil, err
	}
	build, ok := builders[prop.Type]
	if !ok {
		return nil, apperr.Newf(apperr.KindConfiguration, "connector "+prop.ID, "unsupported connector type: %s", prop.Type)
	}
	return build(prop)
}

// BaseConnector provides common functionality for all connectors
type BaseConnector struct {
	prop models.ConnectorProperty
}

func (b *BaseConnector) ID() string {
	return b.prop.ID
}

func (b *BaseConnector) Type() models.ConnectorType {
	return b.prop.Type
}

// Property returns the configuration the connector was built from
func (b *BaseConnector) Property() models.ConnectorProperty {
	return b.prop
}

// stamp sets the level and the WADO-RS retrieve URL of every result
func (b *BaseConnector) stamp(results []models.ArchiveQueryResult) {
	base := strings.TrimRight(b.prop.Wado.BasicURL, "/")
	for i := range results {
		r := &results[i]
		r.Level = r.DeepestLevel()
		if r.StudyInstanceUID == "" {
			continue
		}
		u := base + "/studies/" + url.PathEscape(r.StudyInstanceUID)
		if r.SeriesInstanceUID != "" {
			u += "/series/" + url.PathEscape(r.SeriesInstanceUID)
			if r.SOPInstanceUID != "" {
				u += "/instances/" + url.PathEscape(r.SOPInstanceUID)
			}
		}
		r.RetrieveURL = u
	}
}

// page applies offset/limit to a full result set for archives that cannot
// page server side
func page(results []models.ArchiveQueryResult, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation) {
	if criteria.Offset > 0 {
		if criteria.Offset >= len(results) {
			return nil, nil
		}
		results = results[criteria.Offset:]
	}
	if criteria.Limit > 0 && len(results) > criteria.Limit {
		return results[:criteria.Limit], &models.Continuation{
			Offset: criteria.Offset + criteria.Limit,
			Limit:  criteria.Limit,
		}
	}
	return results, nil
}

// contextError returns the context error when ctx ended, so cancellation is
// never reported as an archive failure
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// instrumented records metrics and logs around a connector
type instrumented struct {
	ArchiveConnector
}

// Instrument wraps c with query metrics and logging
func Instrument(c ArchiveConnector) ArchiveConnector {
	return &instrumented{ArchiveConnector: c}
}

func (i *instrumented) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error) {
	start := time.Now()
	results, cont, err := i.ArchiveConnector.Search(ctx, criteria)
	duration := time.Since(start)

	id, typ := i.ID(), string(i.Type())
	metrics.ArchiveQueryDuration.WithLabelValues(id, typ).Observe(duration.Seconds())

	outcome := "success"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		log.Warn().
			Err(err).
			Str("archive_id", id).
			Str("type", typ).
			Dur("duration", duration).
			Msg("Archive search failed")
	} else {
		log.Debug().
			Str("archive_id", id).
			Str("type", typ).
			Int("num_results", len(results)).
			Bool("truncated", cont != nil).
			Dur("duration", duration).
			Msg("Archive search completed")
	}
	metrics.ArchiveQueries.WithLabelValues(id, typ, outcome).Inc()

	return results, cont, err
}

func opName(c ArchiveConnector, op string) string {
	return fmt.Sprintf("%s %s", c.ID(), op)
}
