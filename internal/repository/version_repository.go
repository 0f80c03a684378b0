package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/ris-viewer-manager/internal/database"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"gorm.io/gorm/clause"
)

// VersionRepository handles published release versions
type VersionRepository struct{}

// NewVersionRepository creates a new version repository
func NewVersionRepository() *VersionRepository {
	return &VersionRepository{}
}

// ListReleaseVersions returns every published release
func (r *VersionRepository) ListReleaseVersions(ctx context.Context) ([]models.MinimalReleaseVersion, error) {
	var versions []models.MinimalReleaseVersion
	if err := database.DB.WithContext(ctx).Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list release versions: %w", err)
	}
	return versions, nil
}

// Publish records a release, replacing the minimal and i18n versions of an
// existing one
func (r *VersionRepository) Publish(ctx context.Context, v *models.MinimalReleaseVersion) error {
	err := database.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "release_version"}},
			DoUpdates: clause.AssignmentColumns([]string{"minimal_version", "i18n_version"}),
		}).
		Create(v).Error
	if err != nil {
		return fmt.Errorf("failed to publish release %s: %w", v.ReleaseVersion, err)
	}
	return nil
}
