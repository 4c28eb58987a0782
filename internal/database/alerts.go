package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/reporttrack/internal/models"
)

// Alert types

func (s *Store) CreateAlertType(ctx context.Context, t *models.AlertType) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) SaveAlertType(ctx context.Context, t *models.AlertType) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *Store) GetAlertType(ctx context.Context, id uint) (*models.AlertType, error) {
	var t models.AlertType
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, "alert type", id)
	}
	return &t, nil
}

func (s *Store) ListAlertTypes(ctx context.Context, enabled *bool) ([]models.AlertType, error) {
	var types []models.AlertType
	query := s.db.WithContext(ctx)
	if enabled != nil {
		query = query.Where("is_enabled = ?", *enabled)
	}
	if err := query.Order("post_due, days_before_due DESC, id").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) CountAlertTypes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AlertType{}).Count(&count).Error
	return count, err
}

func (s *Store) SetAlertTypeEnabled(ctx context.Context, id uint, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.AlertType{}).Where("id = ?", id).Update("is_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert type %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAlertType(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.AlertType{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert type %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// Alerts

type AlertFilter struct {
	RecipientID uint
	InstanceID  uint
	Day         string
	UnreadOnly  bool
	Limit       int
}

// AlertExists is the daily dedup lookup, served by idx_alert_daily.
func (s *Store) AlertExists(ctx context.Context, instanceID, alertTypeID uint, day string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("instance_id = ? AND alert_type_id = ? AND day = ?", instanceID, alertTypeID, day).
		Count(&count).Error
	return count > 0, err
}

// CreateAlert inserts the alert; a concurrent duplicate for the same
// (instance, type, recipient, day) is silently ignored and reported as false.
func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(alert)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).Preload("AlertType").Preload("Recipient").First(&alert, id).Error; err != nil {
		return nil, notFound(err, "alert", id)
	}
	return &alert, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	query := s.db.WithContext(ctx).
		Preload("AlertType").
		Preload("Recipient").
		Preload("Instance.Definition.Entity")
	if filter.RecipientID != 0 {
		query = query.Where("recipient_id = ?", filter.RecipientID)
	}
	if filter.InstanceID != 0 {
		query = query.Where("instance_id = ?", filter.InstanceID)
	}
	if filter.Day != "" {
		query = query.Where("day = ?", filter.Day)
	}
	if filter.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var alerts []models.Alert
	if err := query.Order("scheduled_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkAlertRead marks one of the recipient's alerts as read.
func (s *Store) MarkAlertRead(ctx context.Context, id, recipientID uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every unread alert of the recipient as read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context, recipientID uint, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// CountUnreadCritical counts unread alerts raised by post-due alert types.
func (s *Store) CountUnreadCritical(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Joins("JOIN alert_types ON alert_types.id = alerts.alert_type_id").
		Where("alerts.read = ? AND alert_types.post_due = ?", false, true).
		Count(&count).Error
	return count, err
}
