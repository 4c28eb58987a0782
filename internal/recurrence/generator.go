// Package recurrence expands report definitions into dated report instances.
package recurrence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/duedate"
	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
)

// Store is the persistence the generator needs.
type Store interface {
	PeriodExists(ctx context.Context, definitionID uint, period string) (bool, error)
	CountInstances(ctx context.Context, definitionID uint) (int64, error)
	CreateInstance(ctx context.Context, inst *models.ReportInstance) error
}

// Candidate is a period whose due date falls inside a generation window.
type Candidate struct {
	Period  duedate.Period
	DueDate time.Time
}

type Generator struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewGenerator(store Store, logger *zap.Logger, m *metrics.Metrics) *Generator {
	return &Generator{store: store, logger: logger, metrics: m}
}

// Candidates lists the periods of def whose due date lies in [rangeStart, rangeEnd],
// ordered by due date. Periods outside the definition's validity window are dropped.
// ONE_TIME definitions yield at most one candidate: the first year in range.
func Candidates(def *models.ReportDefinition, rangeStart, rangeEnd time.Time) ([]Candidate, error) {
	rangeStart, rangeEnd = clock.DateOf(rangeStart), clock.DateOf(rangeEnd)
	if rangeEnd.Before(rangeStart) {
		return nil, nil
	}

	dueOf := func(p duedate.Period) (time.Time, error) {
		return duedate.DueDate(p, def.EffectiveDueDay(), def.EffectiveDueMonth(), def.GraceDays)
	}

	if def.Frequency == models.FrequencyOneTime {
		for year := rangeStart.Year(); year <= rangeEnd.Year(); year++ {
			p, err := duedate.PeriodOf(def.Frequency, clock.Date(year, time.January, 1))
			if err != nil {
				return nil, err
			}
			due, err := dueOf(p)
			if err != nil {
				return nil, err
			}
			if !due.Before(rangeStart) && !due.After(rangeEnd) && withinValidity(def, p) {
				return []Candidate{{Period: p, DueDate: due}}, nil
			}
		}
		return nil, nil
	}

	p, err := duedate.PeriodOf(def.Frequency, rangeStart)
	if err != nil {
		return nil, err
	}

	// Due dates trail their periods, so earlier periods may still be due inside the window.
	for {
		prev := duedate.Shift(p, -1)
		due, err := dueOf(prev)
		if err != nil {
			return nil, err
		}
		if due.Before(rangeStart) {
			break
		}
		p = prev
	}

	var out []Candidate
	for {
		due, err := dueOf(p)
		if err != nil {
			return nil, err
		}
		if due.After(rangeEnd) {
			break
		}
		if !due.Before(rangeStart) && withinValidity(def, p) {
			out = append(out, Candidate{Period: p, DueDate: due})
		}
		p = duedate.Shift(p, 1)
	}
	return out, nil
}

func withinValidity(def *models.ReportDefinition, p duedate.Period) bool {
	if def.ValidFrom != nil && p.End.Before(clock.DateOf(*def.ValidFrom)) {
		return false
	}
	if def.ValidUntil != nil && p.Start.After(clock.DateOf(*def.ValidUntil)) {
		return false
	}
	return true
}

// Generate persists an instance for every candidate period of def that has none yet
// and returns only the instances it created. Repeated calls over the same range
// create nothing new.
func (g *Generator) Generate(ctx context.Context, def *models.ReportDefinition, rangeStart, rangeEnd time.Time) ([]models.ReportInstance, error) {
	if def.Frequency == models.FrequencyOneTime {
		count, err := g.store.CountInstances(ctx, def.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count instances of %s: %w", def.Code, err)
		}
		if count > 0 {
			return nil, nil
		}
	}

	candidates, err := Candidates(def, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate periods of %s: %w", def.Code, err)
	}

	var created []models.ReportInstance
	for _, c := range candidates {
		exists, err := g.store.PeriodExists(ctx, def.ID, c.Period.Label)
		if err != nil {
			return created, fmt.Errorf("failed to check period %s of %s: %w", c.Period.Label, def.Code, err)
		}
		if exists {
			continue
		}

		zero := 0
		inst := models.ReportInstance{
			DefinitionID:  def.ID,
			Period:        c.Period.Label,
			DueDate:       c.DueDate,
			Status:        models.StatusPending,
			DeviationDays: &zero,
		}
		if err := g.store.CreateInstance(ctx, &inst); err != nil {
			return created, fmt.Errorf("failed to create instance %s of %s: %w", c.Period.Label, def.Code, err)
		}
		created = append(created, inst)
	}

	if len(created) > 0 {
		g.logger.Info("Generated report instances",
			zap.String("definition", def.Code),
			zap.Int("count", len(created)))
		g.metrics.InstancesGenerated(len(created))
	}
	return created, nil
}

// GenerateAll runs Generate for each active definition. A failing definition is
// logged and skipped; the total number of created instances is returned.
func (g *Generator) GenerateAll(ctx context.Context, defs []models.ReportDefinition, rangeStart, rangeEnd time.Time) int {
	total := 0
	for i := range defs {
		if !defs[i].IsActive {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		created, err := g.Generate(ctx, &defs[i], rangeStart, rangeEnd)
		total += len(created)
		if err != nil {
			g.logger.Error("Failed to generate instances",
				zap.String("definition", defs[i].Code),
				zap.Error(err))
		}
	}
	return total
}
