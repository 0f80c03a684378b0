package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records the outcome of one archive query within a request
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequestID    string    `gorm:"type:varchar(100);index" json:"request_id"`
	Target       string    `gorm:"type:varchar(255);index" json:"target"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	ArchiveID    string    `gorm:"type:varchar(255);index" json:"archive_id"`
	ResourceUID  string    `gorm:"type:varchar(255);index" json:"resource_uid"`
	Status       string    `gorm:"type:varchar(20);index" json:"status"` // success, failure
	ErrorKind    string    `gorm:"type:varchar(50)" json:"error_kind,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	ResultCount  int       `json:"result_count"`
	Duration     int64     `json:"duration_ms"` // milliseconds
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
