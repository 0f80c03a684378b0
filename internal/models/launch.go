package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TargetType is the scope a launch configuration applies to
type TargetType string

const (
	TargetTypeHost      TargetType = "HOST"
	TargetTypeHostGroup TargetType = "HOST_GROUP"
	TargetTypeUser      TargetType = "USER"
)

// targetOrder is the precedence of each scope: lower is broader and is
// applied first, higher overrides it.
var targetOrder = map[TargetType]int{
	TargetTypeHost:      1,
	TargetTypeHostGroup: 2,
	TargetTypeUser:      3,
}

// Order returns the precedence of the target type, 0 when unknown
func (t TargetType) Order() int {
	return targetOrder[t]
}

// Valid reports whether t is a known target type
func (t TargetType) Valid() bool {
	_, ok := targetOrder[t]
	return ok
}

// Target is a user, host or host group a launch is resolved for
type Target struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_target_name_type" json:"name"`
	Type      TargetType `gorm:"type:varchar(20);not null;uniqueIndex:idx_target_name_type" json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName overrides the table name
func (Target) TableName() string {
	return "targets"
}

// BeforeCreate hook
func (t *Target) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// GroupMembership links a host target to a host group target
type GroupMembership struct {
	GroupID uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
	HostID  uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"host_id"`
}

// TableName overrides the table name
func (GroupMembership) TableName() string {
	return "target_group_members"
}

// LaunchConfig is a named viewer configuration bundle
type LaunchConfig struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Value     string    `gorm:"type:text" json:"value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (LaunchConfig) TableName() string {
	return "launch_configs"
}

// BeforeCreate hook
func (c *LaunchConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// LaunchPreferred is a named preference bundle
type LaunchPreferred struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Type      string    `gorm:"type:varchar(50)" json:"type,omitempty"`
	Value     string    `gorm:"type:text" json:"value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (LaunchPreferred) TableName() string {
	return "launch_preferred"
}

// BeforeCreate hook
func (p *LaunchPreferred) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Launch associates a target with a config and a preferred bundle. It owns
// none of the referenced rows.
type Launch struct {
	TargetID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"target_id"`
	LaunchConfigID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"launch_config_id"`
	LaunchPreferredID uuid.UUID `gorm:"type:uuid;primaryKey" json:"launch_preferred_id"`
	Selection         string    `gorm:"type:text" json:"selection"`

	Target          Target          `gorm:"foreignKey:TargetID" json:"target"`
	LaunchConfig    LaunchConfig    `gorm:"foreignKey:LaunchConfigID" json:"launch_config"`
	LaunchPreferred LaunchPreferred `gorm:"foreignKey:LaunchPreferredID" json:"launch_preferred"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Launch) TableName() string {
	return "launches"
}
