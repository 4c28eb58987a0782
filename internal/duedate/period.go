package duedate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/models"
)

const isoDate = "2006-01-02"

// Period is a reporting period. Start and End are inclusive calendar dates.
type Period struct {
	Frequency models.Frequency
	Label     string
	Start     time.Time
	End       time.Time
}

var (
	monthlyLabel    = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	bimonthlyLabel  = regexp.MustCompile(`^(\d{4})-B([1-6])$`)
	quarterlyLabel  = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	semiannualLabel = regexp.MustCompile(`^(\d{4})-S([12])$`)
	annualLabel     = regexp.MustCompile(`^(\d{4})$`)
	oneTimeLabel    = regexp.MustCompile(`^(\d{4})-ONCE$`)

	slotLabels = map[models.Frequency]*regexp.Regexp{
		models.FrequencyBimonthly:  bimonthlyLabel,
		models.FrequencyQuarterly:  quarterlyLabel,
		models.FrequencySemiannual: semiannualLabel,
	}
)

// monthsPer returns the length in months of month-aligned frequencies, 0 otherwise.
func monthsPer(freq models.Frequency) int {
	switch freq {
	case models.FrequencyMonthly:
		return 1
	case models.FrequencyBimonthly:
		return 2
	case models.FrequencyQuarterly:
		return 3
	case models.FrequencySemiannual:
		return 6
	case models.FrequencyAnnual, models.FrequencyOneTime:
		return 12
	}
	return 0
}

func slotPrefix(freq models.Frequency) string {
	switch freq {
	case models.FrequencyBimonthly:
		return "B"
	case models.FrequencyQuarterly:
		return "Q"
	case models.FrequencySemiannual:
		return "S"
	}
	return ""
}

// ParsePeriod validates label against the frequency's pattern.
func ParsePeriod(freq models.Frequency, label string) (Period, error) {
	switch freq {
	case models.FrequencyDaily, models.FrequencyWeekly:
		d, err := time.Parse(isoDate, label)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q is not an ISO date", models.ErrInvalidPeriodFormat, label)
		}
		return dayPeriod(freq, clock.DateOf(d)), nil
	case models.FrequencyMonthly:
		m := monthlyLabel.FindStringSubmatch(label)
		if m == nil {
			return Period{}, fmt.Errorf("%w: %q, want YYYY-MM", models.ErrInvalidPeriodFormat, label)
		}
		month := atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("%w: month %d out of range", models.ErrInvalidPeriodFormat, month)
		}
		return monthPeriod(freq, atoi(m[1]), month), nil
	case models.FrequencyBimonthly, models.FrequencyQuarterly, models.FrequencySemiannual:
		m := slotLabels[freq].FindStringSubmatch(label)
		if m == nil {
			return Period{}, fmt.Errorf("%w: %q, want YYYY-%sn", models.ErrInvalidPeriodFormat, label, slotPrefix(freq))
		}
		slot := atoi(m[2])
		return monthPeriod(freq, atoi(m[1]), (slot-1)*monthsPer(freq)+1), nil
	case models.FrequencyAnnual:
		m := annualLabel.FindStringSubmatch(label)
		if m == nil {
			return Period{}, fmt.Errorf("%w: %q, want YYYY", models.ErrInvalidPeriodFormat, label)
		}
		return monthPeriod(freq, atoi(m[1]), 1), nil
	case models.FrequencyOneTime:
		m := oneTimeLabel.FindStringSubmatch(label)
		if m == nil {
			return Period{}, fmt.Errorf("%w: %q, want YYYY-ONCE", models.ErrInvalidPeriodFormat, label)
		}
		return monthPeriod(freq, atoi(m[1]), 1), nil
	}
	return Period{}, fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, freq)
}

// PeriodOf returns the period of the given frequency that contains date.
// Weekly periods start on Monday.
func PeriodOf(freq models.Frequency, date time.Time) (Period, error) {
	date = clock.DateOf(date)
	switch freq {
	case models.FrequencyDaily:
		return dayPeriod(freq, date), nil
	case models.FrequencyWeekly:
		offset := (int(date.Weekday()) + 6) % 7
		return dayPeriod(freq, date.AddDate(0, 0, -offset)), nil
	}
	n := monthsPer(freq)
	if n == 0 {
		return Period{}, fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, freq)
	}
	startMonth := (int(date.Month())-1)/n*n + 1
	return monthPeriod(freq, date.Year(), startMonth), nil
}

// Shift moves p by n periods of its own length.
func Shift(p Period, n int) Period {
	switch p.Frequency {
	case models.FrequencyDaily:
		return dayPeriod(p.Frequency, p.Start.AddDate(0, 0, n))
	case models.FrequencyWeekly:
		return dayPeriod(p.Frequency, p.Start.AddDate(0, 0, 7*n))
	}
	start := p.Start.AddDate(0, n*monthsPer(p.Frequency), 0)
	return monthPeriod(p.Frequency, start.Year(), int(start.Month()))
}

func dayPeriod(freq models.Frequency, start time.Time) Period {
	end := start
	if freq == models.FrequencyWeekly {
		end = start.AddDate(0, 0, 6)
	}
	return Period{Frequency: freq, Label: start.Format(isoDate), Start: start, End: end}
}

func monthPeriod(freq models.Frequency, year, startMonth int) Period {
	start := clock.Date(year, time.Month(startMonth), 1)
	n := monthsPer(freq)
	p := Period{
		Frequency: freq,
		Start:     start,
		End:       start.AddDate(0, n, -1),
	}
	switch freq {
	case models.FrequencyMonthly:
		p.Label = fmt.Sprintf("%04d-%02d", year, startMonth)
	case models.FrequencyAnnual:
		p.Label = fmt.Sprintf("%04d", year)
	case models.FrequencyOneTime:
		p.Label = fmt.Sprintf("%04d-ONCE", year)
	default:
		p.Label = fmt.Sprintf("%04d-%s%d", year, slotPrefix(freq), (startMonth-1)/n+1)
	}
	return p
}

// atoi is only called on regexp-matched digit groups.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
