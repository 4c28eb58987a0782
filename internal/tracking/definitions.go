// Package tracking implements the lifecycle of report definitions and their instances.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/duedate"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/recurrence"
)

// DefinitionInput is the writable part of a report definition.
type DefinitionInput struct {
	Code            string     `json:"code" validate:"required,max=50"`
	Name            string     `json:"name" validate:"required,max=200"`
	EntityID        uint       `json:"entity_id" validate:"required"`
	LegalBasis      string     `json:"legal_basis"`
	Frequency       string     `json:"frequency" validate:"required"`
	DueDay          *int       `json:"due_day" validate:"omitempty,min=1,max=31"`
	DueMonth        *int       `json:"due_month" validate:"omitempty,min=1,max=12"`
	GraceDays       int        `json:"grace_days" validate:"min=0,max=365"`
	ValidFrom       *time.Time `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until"`
	RequiredFormat  string     `json:"required_format" validate:"max=50"`
	InstructionsURL string     `json:"instructions_url" validate:"omitempty,url"`
	ResponsibleID   uint       `json:"responsible_id" validate:"required"`
	SupervisorID    uint       `json:"supervisor_id" validate:"required"`
	IsActive        *bool      `json:"is_active"`
	ExtraRecipients []string   `json:"extra_recipients" validate:"dive,email"`
}

type DefinitionService struct {
	store         *database.Store
	generator     *recurrence.Generator
	clock         clock.Clock
	logger        *zap.Logger
	validate      *validator.Validate
	horizonMonths int
}

func NewDefinitionService(store *database.Store, gen *recurrence.Generator, c clock.Clock, logger *zap.Logger, horizonMonths int) *DefinitionService {
	if horizonMonths <= 0 {
		horizonMonths = 12
	}
	return &DefinitionService{
		store:         store,
		generator:     gen,
		clock:         c,
		logger:        logger,
		validate:      validator.New(),
		horizonMonths: horizonMonths,
	}
}

// GenerationWindow is the range instances are created over when a definition is
// saved: the first day of the current month to December 31 of next year.
func GenerationWindow(today time.Time) (time.Time, time.Time) {
	start := clock.Date(today.Year(), today.Month(), 1)
	end := clock.Date(today.Year()+1, time.December, 31)
	return start, end
}

func (s *DefinitionService) check(ctx context.Context, in DefinitionInput) (models.Frequency, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidDefinition, err)
	}
	freq, ok := models.ParseFrequency(in.Frequency)
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, in.Frequency)
	}
	if freq.RequiresDueMonth() && in.DueMonth == nil {
		return "", fmt.Errorf("%w: %s requires a due month", models.ErrInvalidDefinition, freq)
	}
	if freq == models.FrequencyWeekly && in.DueDay != nil && *in.DueDay > 7 {
		return "", fmt.Errorf("%w: weekly due day is a weekday 1..7", models.ErrInvalidDefinition)
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return "", fmt.Errorf("%w: valid_until is before valid_from", models.ErrInvalidDefinition)
	}
	if _, err := s.store.GetEntity(ctx, in.EntityID); err != nil {
		return "", err
	}
	if _, err := s.store.GetUser(ctx, in.ResponsibleID); err != nil {
		return "", err
	}
	if _, err := s.store.GetUser(ctx, in.SupervisorID); err != nil {
		return "", err
	}
	return freq, nil
}

func (in DefinitionInput) apply(def *models.ReportDefinition, freq models.Frequency) {
	def.Code = in.Code
	def.Name = in.Name
	def.EntityID = in.EntityID
	def.LegalBasis = in.LegalBasis
	def.Frequency = freq
	def.DueDay = in.DueDay
	def.DueMonth = in.DueMonth
	def.GraceDays = in.GraceDays
	def.ValidFrom = in.ValidFrom
	def.ValidUntil = in.ValidUntil
	def.RequiredFormat = in.RequiredFormat
	def.InstructionsURL = in.InstructionsURL
	def.ResponsibleID = in.ResponsibleID
	def.SupervisorID = in.SupervisorID
	def.IsActive = in.IsActive == nil || *in.IsActive
}

// Create stores a definition and, when it is active, generates its instances over
// GenerationWindow.
func (s *DefinitionService) Create(ctx context.Context, in DefinitionInput) (*models.ReportDefinition, error) {
	freq, err := s.check(ctx, in)
	if err != nil {
		return nil, err
	}

	def := &models.ReportDefinition{}
	in.apply(def, freq)
	for _, email := range in.ExtraRecipients {
		def.ExtraRecipients = append(def.ExtraRecipients, models.DefinitionRecipient{Email: email})
	}
	if err := s.store.CreateDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create report definition %s: %w", in.Code, err)
	}
	// default:true swallows an explicit false on insert.
	if !def.IsActive {
		if err := s.store.SetDefinitionActive(ctx, def.ID, false); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Created report definition",
		zap.String("code", def.Code),
		zap.String("frequency", string(def.Frequency)))

	if def.IsActive {
		start, end := GenerationWindow(clock.Today(s.clock))
		if _, err := s.generator.Generate(ctx, def, start, end); err != nil {
			return nil, err
		}
	}
	return s.store.GetDefinition(ctx, def.ID)
}

func scheduleChanged(def *models.ReportDefinition, freq models.Frequency, in DefinitionInput) bool {
	return def.Frequency != freq ||
		!sameInt(def.DueDay, in.DueDay) ||
		!sameInt(def.DueMonth, in.DueMonth) ||
		def.GraceDays != in.GraceDays
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Update rewrites a definition. When its schedule changes, due dates of open
// instances are recomputed and missing periods are generated.
func (s *DefinitionService) Update(ctx context.Context, id uint, in DefinitionInput) (*models.ReportDefinition, error) {
	def, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	freq, err := s.check(ctx, in)
	if err != nil {
		return nil, err
	}

	rescheduled := scheduleChanged(def, freq, in)
	in.apply(def, freq)
	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to update report definition %d: %w", id, err)
	}
	if err := s.store.ReplaceRecipients(ctx, def.ID, in.ExtraRecipients); err != nil {
		return nil, fmt.Errorf("failed to update recipients of %s: %w", def.Code, err)
	}

	if rescheduled {
		if err := s.reschedule(ctx, def); err != nil {
			return nil, err
		}
	}
	if def.IsActive {
		start, end := GenerationWindow(clock.Today(s.clock))
		if _, err := s.generator.Generate(ctx, def, start, end); err != nil {
			return nil, err
		}
	}
	return s.store.GetDefinition(ctx, def.ID)
}

// reschedule recomputes the due date of every open instance of def. Instances whose
// period label no longer parses under the new frequency keep their due date.
func (s *DefinitionService) reschedule(ctx context.Context, def *models.ReportDefinition) error {
	open, err := s.store.ListInstances(ctx, database.InstanceFilter{
		DefinitionID:    def.ID,
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
	if err != nil {
		return err
	}

	updated := 0
	for i := range open {
		inst := &open[i]
		due, err := duedate.ForDefinition(def, inst.Period)
		if err != nil {
			s.logger.Warn("Keeping due date of instance",
				zap.Uint("instance", inst.ID),
				zap.String("period", inst.Period),
				zap.Error(err))
			continue
		}
		if due.Equal(inst.DueDate) {
			continue
		}
		inst.DueDate = due
		if err := s.store.SaveInstance(ctx, inst); err != nil {
			return fmt.Errorf("failed to reschedule instance %d: %w", inst.ID, err)
		}
		updated++
	}
	s.logger.Info("Rescheduled open instances",
		zap.String("definition", def.Code),
		zap.Int("updated", updated))
	return nil
}

func (s *DefinitionService) Get(ctx context.Context, id uint) (*models.ReportDefinition, error) {
	return s.store.GetDefinition(ctx, id)
}

func (s *DefinitionService) List(ctx context.Context, filter database.DefinitionFilter) ([]models.ReportDefinition, error) {
	return s.store.ListDefinitions(ctx, filter)
}

// Delete removes the definition together with its instances and their alerts.
func (s *DefinitionService) Delete(ctx context.Context, id uint) error {
	if err := s.store.DeleteDefinition(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted report definition", zap.Uint("id", id))
	return nil
}

func (s *DefinitionService) Activate(ctx context.Context, id uint) error {
	return s.store.SetDefinitionActive(ctx, id, true)
}

// Deactivate stops generation for the definition; existing instances are kept.
func (s *DefinitionService) Deactivate(ctx context.Context, id uint) error {
	return s.store.SetDefinitionActive(ctx, id, false)
}

// Generate creates the missing instances of one definition whose due dates fall in
// [from, to]. Zero bounds default to GenerationWindow.
func (s *DefinitionService) Generate(ctx context.Context, id uint, from, to time.Time) ([]models.ReportInstance, error) {
	def, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	start, end := GenerationWindow(clock.Today(s.clock))
	if !from.IsZero() {
		start = from
	}
	if !to.IsZero() {
		end = to
	}
	return s.generator.Generate(ctx, def, start, end)
}

// CatchUp generates instances for all active definitions from the first day of the
// current month to the configured horizon.
func (s *DefinitionService) CatchUp(ctx context.Context) (int, error) {
	defs, err := s.store.ListDefinitions(ctx, database.DefinitionFilter{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list active definitions: %w", err)
	}
	today := clock.Today(s.clock)
	start := clock.Date(today.Year(), today.Month(), 1)
	end := start.AddDate(0, s.horizonMonths+1, -1)
	return s.generator.GenerateAll(ctx, defs, start, end), nil
}
