package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/reporttrack/internal/models"
)

const (
	summarySheet   = "Summary"
	instancesSheet = "Instances"
	entitySheet    = "By entity"
	trendSheet     = "Trend"
)

// WriteWorkbook exports a period summary and its instances as an xlsx workbook.
func WriteWorkbook(w io.Writer, period *PeriodSummary, instances []models.ReportInstance) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	for _, name := range []string{instancesSheet, entitySheet, trendSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	s := period.Summary
	summaryRows := [][]interface{}{
		{"Metric", "Value"},
		{"From", s.From.Format("2006-01-02")},
		{"To", s.To.Format("2006-01-02")},
		{"Total", s.Total},
		{"On time", s.OnTime},
		{"Late", s.Late},
		{"Overdue", s.Overdue},
		{"Pending", s.Pending},
		{"On time %", s.OnTimePercent},
		{"Average days late", s.AverageLateDays},
	}
	if err := writeRows(f, summarySheet, summaryRows, bold); err != nil {
		return err
	}

	instanceRows := [][]interface{}{{"Code", "Report", "Entity", "Period", "Due date", "Status", "Submitted", "Deviation"}}
	for i := range instances {
		inst := &instances[i]
		submitted := ""
		if inst.SubmittedAt != nil {
			submitted = inst.SubmittedAt.Format("2006-01-02")
		}
		instanceRows = append(instanceRows, []interface{}{
			inst.Definition.Code,
			inst.Definition.Name,
			inst.Definition.Entity.Name,
			inst.Period,
			inst.DueDate.Format("2006-01-02"),
			string(inst.Status),
			submitted,
			inst.Deviation(),
		})
	}
	if err := writeRows(f, instancesSheet, instanceRows, bold); err != nil {
		return err
	}

	entityRows := [][]interface{}{{"Entity", "Total", "On time", "Late", "Overdue", "Pending", "On time %"}}
	for _, g := range period.ByEntity {
		entityRows = append(entityRows, []interface{}{g.Name, g.Total, g.OnTime, g.Late, g.Overdue, g.Pending, g.OnTimePercent})
	}
	if err := writeRows(f, entitySheet, entityRows, bold); err != nil {
		return err
	}

	trendRows := [][]interface{}{{"Month", "Total", "On time", "On time %"}}
	for _, p := range period.Trend {
		trendRows = append(trendRows, []interface{}{p.Month, p.Total, p.OnTime, p.OnTimePercent})
	}
	if err := writeRows(f, trendSheet, trendRows, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}
	return nil
}
