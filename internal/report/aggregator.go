// Package report derives compliance metrics from report instances.
package report

import (
	"sort"
	"time"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/models"
)

type Classification string

const (
	OnTime  Classification = "ON_TIME"
	Late    Classification = "LATE"
	Overdue Classification = "OVERDUE"
	Pending Classification = "PENDING"
)

// Classify places an instance in exactly one compliance bucket as of today.
// Approved instances count as submitted.
func Classify(inst *models.ReportInstance, today time.Time) Classification {
	if inst.Status.IsClosed() {
		if inst.Deviation() <= 0 {
			return OnTime
		}
		return Late
	}
	if !inst.DueDate.IsZero() && clock.DateOf(today).After(clock.DateOf(inst.DueDate)) {
		return Overdue
	}
	return Pending
}

// Summary holds the dashboard counters for a set of instances.
// OnTime, Late, Overdue and Pending partition Total.
type Summary struct {
	From               time.Time      `json:"from"`
	To                 time.Time      `json:"to"`
	Total              int            `json:"total"`
	OnTime             int            `json:"on_time"`
	Late               int            `json:"late"`
	Overdue            int            `json:"overdue"`
	Pending            int            `json:"pending"`
	InProgress         int            `json:"in_progress"`
	OnTimePercent      float64        `json:"on_time_percent"`
	AverageLateDays    float64        `json:"average_late_days"`
	StatusDistribution map[string]int `json:"status_distribution"`
	DueWithin7Days     int            `json:"due_within_7_days"`
	DueWithin3Days     int            `json:"due_within_3_days"`
	UnreadCritical     int64          `json:"unread_critical_alerts"`
}

// Summarize computes the counters over instances as of today.
func Summarize(instances []models.ReportInstance, today time.Time) Summary {
	today = clock.DateOf(today)
	s := Summary{
		Total:              len(instances),
		StatusDistribution: make(map[string]int),
	}

	lateDays, lateCount := 0, 0
	for i := range instances {
		inst := &instances[i]
		switch Classify(inst, today) {
		case OnTime:
			s.OnTime++
		case Late:
			s.Late++
		case Overdue:
			s.Overdue++
		case Pending:
			s.Pending++
		}
		if inst.Status == models.StatusInProgress {
			s.InProgress++
		}
		if d := inst.Deviation(); d > 0 {
			lateDays += d
			lateCount++
		}
		s.StatusDistribution[string(inst.Status)]++

		if !inst.Status.IsClosed() {
			until := clock.DaysBetween(today, inst.DueDate)
			if until > 0 && until <= 7 {
				s.DueWithin7Days++
			}
			if until > 0 && until <= 3 {
				s.DueWithin3Days++
			}
		}
	}

	s.OnTimePercent = percent(s.OnTime, s.Total)
	if lateCount > 0 {
		s.AverageLateDays = float64(lateDays) / float64(lateCount)
	}
	return s
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// TrendPoint is the on-time rate of instances due in one calendar month.
type TrendPoint struct {
	Month         string  `json:"month"`
	Total         int     `json:"total"`
	OnTime        int     `json:"on_time"`
	OnTimePercent float64 `json:"on_time_percent"`
}

// TrendWindow returns the first and last day of the trailing months ending with today's month.
func TrendWindow(today time.Time, months int) (time.Time, time.Time) {
	if months < 1 {
		months = 1
	}
	first := clock.Date(today.Year(), today.Month(), 1).AddDate(0, -(months - 1), 0)
	last := clock.Date(today.Year(), today.Month(), 1).AddDate(0, 1, -1)
	return first, last
}

// Trend buckets instances by due month over the trailing months, oldest first.
func Trend(instances []models.ReportInstance, today time.Time, months int) []TrendPoint {
	first, _ := TrendWindow(today, months)
	if months < 1 {
		months = 1
	}

	points := make([]TrendPoint, months)
	index := make(map[string]int, months)
	for i := range points {
		month := first.AddDate(0, i, 0).Format("2006-01")
		points[i].Month = month
		index[month] = i
	}

	for i := range instances {
		inst := &instances[i]
		idx, ok := index[inst.DueDate.Format("2006-01")]
		if !ok {
			continue
		}
		points[idx].Total++
		if Classify(inst, today) == OnTime {
			points[idx].OnTime++
		}
	}
	for i := range points {
		points[i].OnTimePercent = percent(points[i].OnTime, points[i].Total)
	}
	return points
}

// GroupBy selects the grouping key for per-group aggregates.
type GroupBy string

const (
	ByEntity      GroupBy = "entity"
	ByResponsible GroupBy = "responsible"
)

func groupKey(inst *models.ReportInstance, by GroupBy) string {
	def := &inst.Definition
	if by == ByResponsible {
		return def.Responsible.DisplayName()
	}
	return def.Entity.Name
}

// GroupCompliance is the compliance breakdown of one entity or responsible party.
type GroupCompliance struct {
	Name          string  `json:"name"`
	Total         int     `json:"total"`
	OnTime        int     `json:"on_time"`
	Late          int     `json:"late"`
	Overdue       int     `json:"overdue"`
	Pending       int     `json:"pending"`
	OnTimePercent float64 `json:"on_time_percent"`
}

// ComplianceBy groups instances and classifies each group, in order of first appearance.
func ComplianceBy(instances []models.ReportInstance, today time.Time, by GroupBy) []GroupCompliance {
	var out []GroupCompliance
	index := make(map[string]int)
	for i := range instances {
		inst := &instances[i]
		key := groupKey(inst, by)
		idx, ok := index[key]
		if !ok {
			idx = len(out)
			index[key] = idx
			out = append(out, GroupCompliance{Name: key})
		}
		g := &out[idx]
		g.Total++
		switch Classify(inst, today) {
		case OnTime:
			g.OnTime++
		case Late:
			g.Late++
		case Overdue:
			g.Overdue++
		case Pending:
			g.Pending++
		}
	}
	for i := range out {
		out[i].OnTimePercent = percent(out[i].OnTime, out[i].Total)
	}
	return out
}

// Offender is a group with its count of non-compliant instances.
type Offender struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopOffenders counts instances with a positive deviation per group and returns
// the n largest, sorted by count descending. Equal counts keep first-appearance order.
// Past-due instances without a recorded deviation are not counted.
func TopOffenders(instances []models.ReportInstance, by GroupBy, n int) []Offender {
	var out []Offender
	index := make(map[string]int)
	for i := range instances {
		inst := &instances[i]
		if inst.Deviation() <= 0 {
			continue
		}
		key := groupKey(inst, by)
		idx, ok := index[key]
		if !ok {
			idx = len(out)
			index[key] = idx
			out = append(out, Offender{Name: key})
		}
		out[idx].Count++
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Deadline is a flattened view of an instance for upcoming and overdue lists.
type Deadline struct {
	InstanceID   uint                  `json:"instance_id"`
	DefinitionID uint                  `json:"definition_id"`
	Report       string                `json:"report"`
	Entity       string                `json:"entity"`
	Responsible  string                `json:"responsible"`
	Period       string                `json:"period"`
	DueDate      time.Time             `json:"due_date"`
	Status       models.InstanceStatus `json:"status"`
	DaysUntilDue int                   `json:"days_until_due"`
}

func deadlineOf(inst *models.ReportInstance, today time.Time) Deadline {
	def := &inst.Definition
	return Deadline{
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		Report:       def.Name,
		Entity:       def.Entity.Name,
		Responsible:  def.Responsible.DisplayName(),
		Period:       inst.Period,
		DueDate:      inst.DueDate,
		Status:       inst.Status,
		DaysUntilDue: clock.DaysBetween(today, inst.DueDate),
	}
}

// Upcoming lists open instances due from today through today+days, soonest first.
func Upcoming(instances []models.ReportInstance, today time.Time, days int) []Deadline {
	today = clock.DateOf(today)
	var out []Deadline
	for i := range instances {
		inst := &instances[i]
		if inst.Status.IsClosed() {
			continue
		}
		until := clock.DaysBetween(today, inst.DueDate)
		if until >= 0 && until <= days {
			out = append(out, deadlineOf(inst, today))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}

// OverdueList lists open instances past their due date, most overdue first.
func OverdueList(instances []models.ReportInstance, today time.Time) []Deadline {
	today = clock.DateOf(today)
	var out []Deadline
	for i := range instances {
		inst := &instances[i]
		if Classify(inst, today) == Overdue {
			out = append(out, deadlineOf(inst, today))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}
