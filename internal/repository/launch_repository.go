package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/otcheredev/ris-viewer-manager/internal/database"
	"github.com/otcheredev/ris-viewer-manager/internal/launch"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
)

// LaunchRepository reads targets and launches for launch resolution
type LaunchRepository struct{}

// NewLaunchRepository creates a new launch repository
func NewLaunchRepository() *LaunchRepository {
	return &LaunchRepository{}
}

// FindTargetsFor returns the user target, the host target and every host
// group the host belongs to
func (r *LaunchRepository) FindTargetsFor(ctx context.Context, user, host string) ([]models.Target, error) {
	db := database.DB.WithContext(ctx)
	user, host = strings.TrimSpace(user), strings.TrimSpace(host)

	query := db.Where("1 = 0")
	if user != "" {
		query = query.Or("type = ? AND name = ?", models.TargetTypeUser, user)
	}
	if host != "" {
		groups := db.Model(&models.GroupMembership{}).
			Select("target_group_members.group_id").
			Joins("JOIN targets h ON h.id = target_group_members.host_id").
			Where("h.type = ? AND h.name = ?", models.TargetTypeHost, host)

		query = query.
			Or("type = ? AND name = ?", models.TargetTypeHost, host).
			Or("type = ? AND id IN (?)", models.TargetTypeHostGroup, groups)
	}

	var targets []models.Target
	if err := query.Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("failed to find targets: %w", err)
	}
	return targets, nil
}

// FindLaunches loads the launches passing filter with their target, config
// and preferred rows. The order of the rows is unspecified.
func (r *LaunchRepository) FindLaunches(ctx context.Context, filter launch.Filter) ([]models.Launch, error) {
	if (filter.Targets != nil && len(filter.Targets) == 0) ||
		(filter.Configs != nil && len(filter.Configs) == 0) ||
		(filter.Preferred != nil && len(filter.Preferred) == 0) {
		return []models.Launch{}, nil
	}

	query := database.DB.WithContext(ctx).
		Model(&models.Launch{}).
		Preload("Target").
		Preload("LaunchConfig").
		Preload("LaunchPreferred")

	if filter.Targets != nil {
		query = query.Where("launches.target_id IN ?", filter.Targets)
	}
	if filter.Configs != nil {
		query = query.
			Joins("JOIN launch_configs lc ON lc.id = launches.launch_config_id").
			Where("lc.name IN ?", filter.Configs)
	}
	if filter.Preferred != nil {
		query = query.
			Joins("JOIN launch_preferred lp ON lp.id = launches.launch_preferred_id").
			Where("lp.name IN ?", filter.Preferred)
	}

	var launches []models.Launch
	if err := query.Find(&launches).Error; err != nil {
		return nil, fmt.Errorf("failed to find launches: %w", err)
	}
	return launches, nil
}
