package models

import "time"

// MinimalReleaseVersion records, for a published package release, the
// oldest compatible package version and the i18n resource version to use.
type MinimalReleaseVersion struct {
	ReleaseVersion string    `gorm:"type:varchar(64);primaryKey" json:"release_version"`
	MinimalVersion string    `gorm:"type:varchar(64);not null" json:"minimal_version"`
	I18nVersion    string    `gorm:"type:varchar(64)" json:"i18n_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName overrides the table name
func (MinimalReleaseVersion) TableName() string {
	return "minimal_release_versions"
}
