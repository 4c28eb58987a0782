package commands

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/reporttrack/internal/models"
)

const dateLayout = "2006-01-02"

func parseDate(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", name, raw)
	}
	return t, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := parseDate("from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseDate("validity", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func writeInstances(out io.Writer, instances []models.ReportInstance) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tPERIOD\tDUE\tSTATUS\tDEVIATION\tRESPONSIBLE")
	for _, inst := range instances {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.ID,
			inst.Definition.Code,
			inst.Period,
			inst.DueDate.Format(dateLayout),
			inst.Status,
			optionalInt(inst.DeviationDays),
			inst.Definition.Responsible.Username,
		)
	}
	return w.Flush()
}
