package models

import (
	"time"

	"gorm.io/gorm"
)

type InstanceStatus string

const (
	StatusPending    InstanceStatus = "PENDING"
	StatusInProgress InstanceStatus = "IN_PROGRESS"
	StatusSubmitted  InstanceStatus = "SUBMITTED"
	StatusApproved   InstanceStatus = "APPROVED"
)

// IsValid reports whether s is one of the stored statuses.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSubmitted, StatusApproved:
		return true
	}
	return false
}

// IsClosed reports whether the instance has been filed.
func (s InstanceStatus) IsClosed() bool {
	return s == StatusSubmitted || s == StatusApproved
}

// ReportInstance is one occurrence of a definition for a reporting period.
// (DefinitionID, Period) is unique.
type ReportInstance struct {
	gorm.Model
	DefinitionID  uint             `json:"definition_id" gorm:"uniqueIndex:idx_instance_period;not null"`
	Definition    ReportDefinition `json:"definition"`
	Period        string           `json:"period" gorm:"uniqueIndex:idx_instance_period;not null"`
	DueDate       time.Time        `json:"due_date" gorm:"index;not null"`
	SubmittedAt   *time.Time       `json:"submitted_at"`
	Status        InstanceStatus   `json:"status" gorm:"index;not null;default:PENDING"`
	DeviationDays *int             `json:"deviation_days"`
	SubmittedByID *uint            `json:"submitted_by_id"`
	SubmittedBy   *User            `json:"submitted_by,omitempty"`
	ReportURL     string           `json:"report_url"`
	FileID        string           `json:"file_id"`
	FileName      string           `json:"file_name"`
	EvidenceURL   string           `json:"evidence_url"`
	Notes         string           `json:"notes" gorm:"type:text"`
}

// Deviation returns the deviation in days, treating an unset value as zero.
func (i *ReportInstance) Deviation() int {
	if i.DeviationDays == nil {
		return 0
	}
	return *i.DeviationDays
}

// ChangeLog records a single field change on a tracked record.
type ChangeLog struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	RecordType string    `json:"record_type" gorm:"index:idx_change_record;not null"`
	RecordID   uint      `json:"record_id" gorm:"index:idx_change_record;not null"`
	UserID     *uint     `json:"user_id"`
	Field      string    `json:"field" gorm:"not null"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	ChangedAt  time.Time `json:"changed_at"`
}
