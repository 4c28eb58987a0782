package report

import (
	"context"
	"fmt"
	"time"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/models"
)

// Aggregator loads instances from the store and runs the compliance computations.
type Aggregator struct {
	store *database.Store
	clock clock.Clock
}

func NewAggregator(store *database.Store, c clock.Clock) *Aggregator {
	return &Aggregator{store: store, clock: c}
}

// Today is the aggregator's reference date.
func (a *Aggregator) Today() time.Time {
	return clock.Today(a.clock)
}

// defaultRange fills a missing range with the last three months up to today.
func (a *Aggregator) defaultRange(from, to time.Time) (time.Time, time.Time) {
	today := a.Today()
	if to.IsZero() {
		to = today
	}
	if from.IsZero() {
		from = today.AddDate(0, -3, 0)
	}
	return clock.DateOf(from), clock.DateOf(to)
}

func (a *Aggregator) dueBetween(ctx context.Context, from, to time.Time) ([]models.ReportInstance, error) {
	instances, err := a.store.ListInstances(ctx, database.InstanceFilter{DueFrom: from, DueTo: to})
	if err != nil {
		return nil, fmt.Errorf("failed to load instances due between %s and %s: %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}
	return instances, nil
}

// Summary computes the dashboard counters for instances due in [from, to].
func (a *Aggregator) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	from, to = a.defaultRange(from, to)
	instances, err := a.dueBetween(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}
	s := Summarize(instances, a.Today())
	s.From, s.To = from, to

	// The 3/7-day lookahead covers instances due after the range too.
	upcoming, err := a.dueBetween(ctx, a.Today().AddDate(0, 0, 1), a.Today().AddDate(0, 0, 7))
	if err != nil {
		return Summary{}, err
	}
	ahead := Summarize(upcoming, a.Today())
	s.DueWithin7Days, s.DueWithin3Days = ahead.DueWithin7Days, ahead.DueWithin3Days

	if s.UnreadCritical, err = a.store.CountUnreadCritical(ctx); err != nil {
		return Summary{}, fmt.Errorf("failed to count critical alerts: %w", err)
	}
	return s, nil
}

func (a *Aggregator) ComplianceBy(ctx context.Context, from, to time.Time, by GroupBy) ([]GroupCompliance, error) {
	from, to = a.defaultRange(from, to)
	instances, err := a.dueBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return ComplianceBy(instances, a.Today(), by), nil
}

func (a *Aggregator) Trend(ctx context.Context, months int) ([]TrendPoint, error) {
	first, last := TrendWindow(a.Today(), months)
	instances, err := a.dueBetween(ctx, first, last)
	if err != nil {
		return nil, err
	}
	return Trend(instances, a.Today(), months), nil
}

// StatusDistribution counts every instance by stored status.
func (a *Aggregator) StatusDistribution(ctx context.Context) (map[string]int, error) {
	instances, err := a.store.ListInstances(ctx, database.InstanceFilter{})
	if err != nil {
		return nil, err
	}
	return Summarize(instances, a.Today()).StatusDistribution, nil
}

// TopOffenders ranks groups over all instances up to today.
func (a *Aggregator) TopOffenders(ctx context.Context, by GroupBy, n int) ([]Offender, error) {
	instances, err := a.store.ListInstances(ctx, database.InstanceFilter{DueTo: a.Today()})
	if err != nil {
		return nil, err
	}
	return TopOffenders(instances, by, n), nil
}

func (a *Aggregator) Upcoming(ctx context.Context, days int) ([]Deadline, error) {
	today := a.Today()
	instances, err := a.store.ListInstances(ctx, database.InstanceFilter{
		DueFrom:         today,
		DueTo:           today.AddDate(0, 0, days),
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
	if err != nil {
		return nil, err
	}
	return Upcoming(instances, today, days), nil
}

func (a *Aggregator) Overdue(ctx context.Context) ([]Deadline, error) {
	today := a.Today()
	instances, err := a.store.ListInstances(ctx, database.InstanceFilter{
		DueTo:           today.AddDate(0, 0, -1),
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
	if err != nil {
		return nil, err
	}
	return OverdueList(instances, today), nil
}

// PeriodSummary is the summary of a range together with its group breakdowns.
type PeriodSummary struct {
	Summary       Summary           `json:"summary"`
	ByEntity      []GroupCompliance `json:"by_entity"`
	ByResponsible []GroupCompliance `json:"by_responsible"`
	Trend         []TrendPoint      `json:"trend"`
	TopEntities   []Offender        `json:"top_entities"`
}

// Period assembles everything the dashboard and the exports show for a range.
func (a *Aggregator) Period(ctx context.Context, from, to time.Time, trendMonths, topN int) (*PeriodSummary, error) {
	from, to = a.defaultRange(from, to)
	summary, err := a.Summary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	instances, err := a.dueBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	trend, err := a.Trend(ctx, trendMonths)
	if err != nil {
		return nil, err
	}
	top, err := a.TopOffenders(ctx, ByEntity, topN)
	if err != nil {
		return nil, err
	}
	today := a.Today()
	return &PeriodSummary{
		Summary:       summary,
		ByEntity:      ComplianceBy(instances, today, ByEntity),
		ByResponsible: ComplianceBy(instances, today, ByResponsible),
		Trend:         trend,
		TopEntities:   top,
	}, nil
}
