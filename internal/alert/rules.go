package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/models"
)

// TypeManager maintains the alert type catalogue that drives the sweep.
type TypeManager struct {
	store    *database.Store
	fs       afero.Fs
	validate *validator.Validate
}

func NewTypeManager(store *database.Store, fs afero.Fs) *TypeManager {
	return &TypeManager{store: store, fs: fs, validate: validator.New()}
}

// AlertTypeInput is the writable part of an alert type.
type AlertTypeInput struct {
	Name          string `json:"name" validate:"required,max=100"`
	Color         string `json:"color" validate:"omitempty,hexcolor"`
	DaysBeforeDue int    `json:"days_before_due" validate:"min=0,max=365"`
	PostDue       bool   `json:"post_due"`
	IsEnabled     *bool  `json:"is_enabled"`
}

func (in AlertTypeInput) apply(t *models.AlertType) {
	t.Name = in.Name
	t.Color = in.Color
	t.DaysBeforeDue = in.DaysBeforeDue
	t.PostDue = in.PostDue
	if t.PostDue {
		t.DaysBeforeDue = 0
	}
	t.IsEnabled = in.IsEnabled == nil || *in.IsEnabled
}

func (m *TypeManager) check(in AlertTypeInput) error {
	if err := m.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlertType, err)
	}
	return nil
}

func (m *TypeManager) CreateType(ctx context.Context, in AlertTypeInput) (*models.AlertType, error) {
	if err := m.check(in); err != nil {
		return nil, err
	}
	t := &models.AlertType{}
	in.apply(t)
	if err := m.store.CreateAlertType(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create alert type %s: %w", in.Name, err)
	}
	// default:true swallows an explicit false on insert.
	if !t.IsEnabled {
		if err := m.store.SetAlertTypeEnabled(ctx, t.ID, false); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (m *TypeManager) UpdateType(ctx context.Context, id uint, in AlertTypeInput) (*models.AlertType, error) {
	if err := m.check(in); err != nil {
		return nil, err
	}
	t, err := m.store.GetAlertType(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(t)
	if err := m.store.SaveAlertType(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update alert type %d: %w", id, err)
	}
	return t, nil
}

func (m *TypeManager) DeleteType(ctx context.Context, id uint) error {
	return m.store.DeleteAlertType(ctx, id)
}

func (m *TypeManager) GetType(ctx context.Context, id uint) (*models.AlertType, error) {
	return m.store.GetAlertType(ctx, id)
}

func (m *TypeManager) ListTypes(ctx context.Context, enabled *bool) ([]models.AlertType, error) {
	return m.store.ListAlertTypes(ctx, enabled)
}

func (m *TypeManager) EnableType(ctx context.Context, id uint) error {
	return m.store.SetAlertTypeEnabled(ctx, id, true)
}

func (m *TypeManager) DisableType(ctx context.Context, id uint) error {
	return m.store.SetAlertTypeEnabled(ctx, id, false)
}

// DefaultTypes is the catalogue installed on a fresh database.
func DefaultTypes() []AlertTypeInput {
	return []AlertTypeInput{
		{Name: "Reminder 30 days", Color: "#36a64f", DaysBeforeDue: 30},
		{Name: "Reminder 15 days", Color: "#2eb886", DaysBeforeDue: 15},
		{Name: "Warning 5 days", Color: "#ffcc00", DaysBeforeDue: 5},
		{Name: "Due tomorrow", Color: "#ff8800", DaysBeforeDue: 1},
		{Name: "Overdue", Color: "#ff0000", PostDue: true},
	}
}

// CreateDefaultTypes installs DefaultTypes when no alert type exists yet.
// It reports whether anything was created.
func (m *TypeManager) CreateDefaultTypes(ctx context.Context) (bool, error) {
	count, err := m.store.CountAlertTypes(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count alert types: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	for _, in := range DefaultTypes() {
		if _, err := m.CreateType(ctx, in); err != nil {
			return false, fmt.Errorf("failed to create default alert type %s: %w", in.Name, err)
		}
	}
	return true, nil
}

// ImportTypesFromFile loads a JSON array of alert types and creates them in one transaction.
func (m *TypeManager) ImportTypesFromFile(ctx context.Context, filename string) (int, error) {
	data, err := afero.ReadFile(m.fs, filename)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}
	return m.ImportTypes(ctx, data)
}

// ImportTypes creates the alert types of a JSON array; either all or none are stored.
func (m *TypeManager) ImportTypes(ctx context.Context, data []byte) (int, error) {
	var inputs []AlertTypeInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return 0, fmt.Errorf("%w: failed to parse alert types: %v", ErrInvalidAlertType, err)
	}
	for _, in := range inputs {
		if err := m.check(in); err != nil {
			return 0, fmt.Errorf("alert type %q: %w", in.Name, err)
		}
	}

	err := m.store.Transaction(ctx, func(tx *database.Store) error {
		for _, in := range inputs {
			t := &models.AlertType{}
			in.apply(t)
			if err := tx.CreateAlertType(ctx, t); err != nil {
				return fmt.Errorf("failed to import alert type '%s': %w", in.Name, err)
			}
			if !t.IsEnabled {
				if err := tx.SetAlertTypeEnabled(ctx, t.ID, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(inputs), nil
}

// ExportTypesToFile writes every alert type as indented JSON.
func (m *TypeManager) ExportTypesToFile(ctx context.Context, filename string) error {
	data, err := m.ExportTypes(ctx)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(m.fs, filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ExportTypes renders the catalogue in the shape ImportTypes reads.
func (m *TypeManager) ExportTypes(ctx context.Context) ([]byte, error) {
	types, err := m.store.ListAlertTypes(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alert types: %w", err)
	}

	out := make([]AlertTypeInput, 0, len(types))
	for _, t := range types {
		enabled := t.IsEnabled
		out = append(out, AlertTypeInput{
			Name:          t.Name,
			Color:         t.Color,
			DaysBeforeDue: t.DaysBeforeDue,
			PostDue:       t.PostDue,
			IsEnabled:     &enabled,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert types: %w", err)
	}
	return data, nil
}
