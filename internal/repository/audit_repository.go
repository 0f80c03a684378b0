package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/ris-viewer-manager/internal/database"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// CreateBatch stores the audit entries of one request
func (r *AuditRepository) CreateBatch(ctx context.Context, logs []models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := database.DB.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("failed to create audit logs: %w", err)
	}
	return nil
}

// ListByArchive retrieves the latest audit logs of an archive
func (r *AuditRepository) ListByArchive(ctx context.Context, archiveID string, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := database.DB.WithContext(ctx).
		Where("archive_id = ?", archiveID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}
