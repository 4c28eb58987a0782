package models

import (
	"time"

	"gorm.io/gorm"
)

type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "INFO"
	AlertLevelWarning  AlertLevel = "WARNING"
	AlertLevelUrgent   AlertLevel = "URGENT"
	AlertLevelCritical AlertLevel = "CRITICAL"
)

// AlertType configures when alerts fire: DaysBeforeDue days ahead of the due date,
// or every day after it when PostDue is set.
type AlertType struct {
	gorm.Model
	Name          string `json:"name" gorm:"uniqueIndex;not null" binding:"required"`
	Color         string `json:"color"`
	DaysBeforeDue int    `json:"days_before_due"`
	PostDue       bool   `json:"post_due"`
	IsEnabled     bool   `json:"is_enabled" gorm:"default:true"`
}

// Level returns the message severity for alerts of this type.
func (t *AlertType) Level() AlertLevel {
	switch {
	case t.PostDue:
		return AlertLevelCritical
	case t.DaysBeforeDue == 1:
		return AlertLevelUrgent
	case t.DaysBeforeDue <= 5:
		return AlertLevelWarning
	default:
		return AlertLevelInfo
	}
}

// Escalates reports whether alerts of this type also go to the supervising party.
func (t *AlertType) Escalates() bool {
	return t.PostDue || t.DaysBeforeDue <= 1
}

// Alert is a notification raised for an instance. At most one alert exists per
// (instance, type, recipient, day).
type Alert struct {
	gorm.Model
	InstanceID  uint           `json:"instance_id" gorm:"uniqueIndex:idx_alert_daily;not null"`
	Instance    ReportInstance `json:"instance"`
	AlertTypeID uint           `json:"alert_type_id" gorm:"uniqueIndex:idx_alert_daily;not null"`
	AlertType   AlertType      `json:"alert_type"`
	RecipientID uint           `json:"recipient_id" gorm:"uniqueIndex:idx_alert_daily;index;not null"`
	Recipient   User           `json:"recipient"`
	Day         string         `json:"day" gorm:"uniqueIndex:idx_alert_daily;size:10;not null"`
	Level       AlertLevel     `json:"level" gorm:"not null"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Sent        bool           `json:"sent"`
	SentAt      *time.Time     `json:"sent_at"`
	Subject     string         `json:"subject"`
	Message     string         `json:"message" gorm:"type:text"`
	Read        bool           `json:"read" gorm:"index"`
	ReadAt      *time.Time     `json:"read_at"`
}
