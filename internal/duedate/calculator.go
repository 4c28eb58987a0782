// Package duedate computes report due dates from frequency rules and period labels.
package duedate

import (
	"fmt"
	"time"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/models"
)

// Compute returns the due date of the reporting period identified by label.
//
// Month-aligned periods are due on dueDay of the month after the period ends,
// clamped to that month's length. Annual periods are due on dueMonth/dueDay of the
// following year, one-time periods on dueMonth/dueDay of the labelled year. Weekly
// periods are due seven days after the label date, moved forward to ISO weekday
// dueDay (1=Monday..7=Sunday) when dueDay is a weekday. Daily periods are due the
// next day. Positive graceDays are added last.
func Compute(freq models.Frequency, label string, dueDay, dueMonth, graceDays int) (time.Time, error) {
	p, err := ParsePeriod(freq, label)
	if err != nil {
		return time.Time{}, err
	}
	return DueDate(p, dueDay, dueMonth, graceDays)
}

// DueDate is Compute for an already parsed period.
func DueDate(p Period, dueDay, dueMonth, graceDays int) (time.Time, error) {
	var due time.Time
	switch p.Frequency {
	case models.FrequencyDaily:
		due = p.Start.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		due = p.Start.AddDate(0, 0, 7)
		if dueDay >= 1 && dueDay <= 7 {
			target := time.Weekday(dueDay % 7)
			due = due.AddDate(0, 0, (int(target)-int(due.Weekday())+7)%7)
		}
	case models.FrequencyMonthly, models.FrequencyBimonthly, models.FrequencyQuarterly, models.FrequencySemiannual:
		next := p.End.AddDate(0, 0, 1)
		due = dayInMonth(next.Year(), next.Month(), dueDay)
	case models.FrequencyAnnual:
		if dueMonth < 1 || dueMonth > 12 {
			return time.Time{}, fmt.Errorf("%w: due month %d out of range", models.ErrInvalidDefinition, dueMonth)
		}
		due = dayInMonth(p.Start.Year()+1, time.Month(dueMonth), dueDay)
	case models.FrequencyOneTime:
		if dueMonth < 1 || dueMonth > 12 {
			return time.Time{}, fmt.Errorf("%w: due month %d out of range", models.ErrInvalidDefinition, dueMonth)
		}
		due = dayInMonth(p.Start.Year(), time.Month(dueMonth), dueDay)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, p.Frequency)
	}

	if graceDays > 0 {
		due = due.AddDate(0, 0, graceDays)
	}
	return due, nil
}

// ForDefinition computes the due date of label using the definition's schedule,
// falling back to the default due day and month when they are unset.
func ForDefinition(def *models.ReportDefinition, label string) (time.Time, error) {
	return Compute(def.Frequency, label, def.EffectiveDueDay(), def.EffectiveDueMonth(), def.GraceDays)
}

// DeviationDays returns submitted - due in days: positive is late, negative early.
// A zero time on either side yields 0.
func DeviationDays(submitted, due time.Time) int {
	if submitted.IsZero() || due.IsZero() {
		return 0
	}
	return clock.DaysBetween(due, submitted)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return clock.Date(year, month+1, 0).Day()
}

func dayInMonth(year int, month time.Month, day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return clock.Date(year, month, day)
}
