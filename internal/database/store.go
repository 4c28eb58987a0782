package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reporttrack/internal/models"
)

// Store is the storage collaborator: repository-style queries over the schema.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a database transaction bound to a Store.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	query := s.db.WithContext(ctx)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Entities

func (s *Store) CreateEntity(ctx context.Context, entity *models.Entity) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *Store) GetEntity(ctx context.Context, id uint) (*models.Entity, error) {
	var entity models.Entity
	if err := s.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		return nil, notFound(err, "entity", id)
	}
	return &entity, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	if err := s.db.WithContext(ctx).Order("name").Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

// Definitions

type DefinitionFilter struct {
	EntityID   uint
	Frequency  models.Frequency
	ActiveOnly bool
}

func (s *Store) definitions(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Entity").
		Preload("Responsible").
		Preload("Supervisor").
		Preload("ExtraRecipients")
}

func (s *Store) CreateDefinition(ctx context.Context, def *models.ReportDefinition) error {
	return s.db.WithContext(ctx).
		Omit("Entity", "Responsible", "Supervisor").
		Create(def).Error
}

// SaveDefinition updates the definition's own columns; associations are left untouched.
func (s *Store) SaveDefinition(ctx context.Context, def *models.ReportDefinition) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(def).Error
}

func (s *Store) ReplaceRecipients(ctx context.Context, defID uint, emails []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("definition_id = ?", defID).Delete(&models.DefinitionRecipient{}).Error; err != nil {
			return err
		}
		for _, email := range emails {
			if err := tx.Create(&models.DefinitionRecipient{DefinitionID: defID, Email: email}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetDefinition(ctx context.Context, id uint) (*models.ReportDefinition, error) {
	var def models.ReportDefinition
	if err := s.definitions(ctx).First(&def, id).Error; err != nil {
		return nil, notFound(err, "report definition", id)
	}
	return &def, nil
}

func (s *Store) ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]models.ReportDefinition, error) {
	var defs []models.ReportDefinition
	query := s.definitions(ctx)
	if filter.EntityID != 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Frequency != "" {
		query = query.Where("frequency = ?", filter.Frequency)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("id").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *Store) SetDefinitionActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.ReportDefinition{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("report definition %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteDefinition removes the definition with its recipients, instances and alerts.
func (s *Store) DeleteDefinition(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instanceIDs := tx.Unscoped().Model(&models.ReportInstance{}).Select("id").Where("definition_id = ?", id)
		if err := tx.Unscoped().Where("instance_id IN (?)", instanceIDs).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("definition_id = ?", id).Delete(&models.ReportInstance{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("definition_id = ?", id).Delete(&models.DefinitionRecipient{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.ReportDefinition{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("report definition %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
}

// Change history

func (s *Store) RecordChanges(ctx context.Context, changes []models.ChangeLog) error {
	if len(changes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&changes).Error
}

func (s *Store) ListChanges(ctx context.Context, recordType string, recordID uint) ([]models.ChangeLog, error) {
	var changes []models.ChangeLog
	err := s.db.WithContext(ctx).
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Order("changed_at, id").
		Find(&changes).Error
	return changes, err
}
