package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reporttrack/internal/models"
)

// InstanceFilter narrows ListInstances. Zero fields are ignored; due dates are inclusive.
type InstanceFilter struct {
	DefinitionID    uint
	EntityID        uint
	ResponsibleID   uint
	SupervisorID    uint
	Frequency       models.Frequency
	DueFrom         time.Time
	DueTo           time.Time
	Statuses        []models.InstanceStatus
	ExcludeStatuses []models.InstanceStatus
	PeriodContains  string
}

func (s *Store) instances(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Definition.Entity").
		Preload("Definition.Responsible").
		Preload("Definition.Supervisor").
		Preload("Definition.ExtraRecipients").
		Preload("SubmittedBy")
}

func (s *Store) CreateInstance(ctx context.Context, inst *models.ReportInstance) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(inst).Error
}

func (s *Store) SaveInstance(ctx context.Context, inst *models.ReportInstance) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(inst).Error
}

func (s *Store) GetInstance(ctx context.Context, id uint) (*models.ReportInstance, error) {
	var inst models.ReportInstance
	if err := s.instances(ctx).First(&inst, id).Error; err != nil {
		return nil, notFound(err, "report instance", id)
	}
	return &inst, nil
}

// PeriodExists reports whether the definition already has an instance for period.
func (s *Store) PeriodExists(ctx context.Context, definitionID uint, period string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ReportInstance{}).
		Where("definition_id = ? AND period = ?", definitionID, period).
		Count(&count).Error
	return count > 0, err
}

// CountInstances returns how many instances the definition has.
func (s *Store) CountInstances(ctx context.Context, definitionID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ReportInstance{}).
		Where("definition_id = ?", definitionID).
		Count(&count).Error
	return count, err
}

func (s *Store) ListInstances(ctx context.Context, filter InstanceFilter) ([]models.ReportInstance, error) {
	query := s.instances(ctx)

	needsJoin := filter.EntityID != 0 || filter.ResponsibleID != 0 || filter.SupervisorID != 0 || filter.Frequency != ""
	if needsJoin {
		query = query.Joins("JOIN report_definitions ON report_definitions.id = report_instances.definition_id")
	}
	if filter.EntityID != 0 {
		query = query.Where("report_definitions.entity_id = ?", filter.EntityID)
	}
	if filter.ResponsibleID != 0 {
		query = query.Where("report_definitions.responsible_id = ?", filter.ResponsibleID)
	}
	if filter.SupervisorID != 0 {
		query = query.Where("report_definitions.supervisor_id = ?", filter.SupervisorID)
	}
	if filter.Frequency != "" {
		query = query.Where("report_definitions.frequency = ?", filter.Frequency)
	}
	if filter.DefinitionID != 0 {
		query = query.Where("report_instances.definition_id = ?", filter.DefinitionID)
	}
	if !filter.DueFrom.IsZero() {
		query = query.Where("report_instances.due_date >= ?", filter.DueFrom)
	}
	if !filter.DueTo.IsZero() {
		query = query.Where("report_instances.due_date <= ?", filter.DueTo)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("report_instances.status IN ?", filter.Statuses)
	}
	if len(filter.ExcludeStatuses) > 0 {
		query = query.Where("report_instances.status NOT IN ?", filter.ExcludeStatuses)
	}
	if filter.PeriodContains != "" {
		query = query.Where("report_instances.period LIKE ?", "%"+filter.PeriodContains+"%")
	}

	var instances []models.ReportInstance
	if err := query.Order("report_instances.due_date, report_instances.id").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to list report instances: %w", err)
	}
	return instances, nil
}

// ListOpenInstances returns instances that are neither submitted nor approved.
func (s *Store) ListOpenInstances(ctx context.Context) ([]models.ReportInstance, error) {
	return s.ListInstances(ctx, InstanceFilter{
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
}

// DeleteInstance removes the instance and its alerts for good, freeing the period for regeneration.
func (s *Store) DeleteInstance(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("instance_id = ?", id).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.ReportInstance{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("report instance %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
}
