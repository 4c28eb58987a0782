package alert

import (
	"fmt"
	"strings"

	"github.com/reporttrack/internal/models"
)

const dateLayout = "2006-01-02"

// ShouldTrigger decides whether an alert type fires for an instance due in
// daysUntilDue days. Pre-due types fire on the exact day only; post-due types
// fire every day once the due date has passed.
func ShouldTrigger(t *models.AlertType, daysUntilDue int) bool {
	if t.PostDue {
		return daysUntilDue < 0
	}
	return daysUntilDue == t.DaysBeforeDue
}

// RenderMessage builds the alert text for the instance. The template is chosen
// by the alert type: overdue, due tomorrow, due within five days, or a reminder.
// A post-due type rendered before the due date uses the template for daysUntilDue.
func RenderMessage(inst *models.ReportInstance, t *models.AlertType, daysUntilDue int) string {
	def := &inst.Definition
	due := inst.DueDate.Format(dateLayout)

	level := t.Level()
	if t.PostDue && daysUntilDue >= 0 {
		level = (&models.AlertType{DaysBeforeDue: daysUntilDue}).Level()
	}

	switch level {
	case models.AlertLevelCritical:
		overdue := -daysUntilDue
		return fmt.Sprintf(
			"CRITICAL: report '%s' for %s (period %s) is OVERDUE by %d days. "+
				"Due date was %s. Submit immediately to avoid penalties.",
			def.Name, def.Entity.Name, inst.Period, overdue, due)
	case models.AlertLevelUrgent:
		return fmt.Sprintf(
			"URGENT: report '%s' for %s (period %s) is due TOMORROW (%s). "+
				"Please complete and submit as soon as possible.",
			def.Name, def.Entity.Name, inst.Period, due)
	case models.AlertLevelWarning:
		return fmt.Sprintf(
			"WARNING: report '%s' for %s (period %s) is due in %d days (%s). "+
				"Make sure preparation is under way.",
			def.Name, def.Entity.Name, inst.Period, daysUntilDue, due)
	default:
		return fmt.Sprintf(
			"REMINDER: report '%s' for %s (period %s) is due in %d days (%s). "+
				"Start collecting the information. Legal basis: %s",
			def.Name, def.Entity.Name, inst.Period, daysUntilDue, due, legalBasis(def))
	}
}

// Subject is the notification subject line for an alert.
func Subject(inst *models.ReportInstance, t *models.AlertType) string {
	return fmt.Sprintf("[%s] %s - %s", t.Level(), t.Name, inst.Definition.Name)
}

// RenderBody wraps an alert message with the instance details for delivery.
func RenderBody(recipientName, message string, inst *models.ReportInstance) string {
	def := &inst.Definition
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n%s\n\n", recipientName, message)
	b.WriteString("Report details:\n")
	rows := [][2]string{
		{"Name", def.Name},
		{"Entity", def.Entity.Name},
		{"Period", inst.Period},
		{"Due date", inst.DueDate.Format(dateLayout)},
		{"Status", string(inst.Status)},
		{"Legal basis", legalBasis(def)},
	}
	if def.InstructionsURL != "" {
		rows = append(rows, [2]string{"Instructions", def.InstructionsURL})
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %-13s %s\n", row[0]+":", row[1])
	}
	b.WriteString("\n---\nThis is an automated message from ReportTrack. Please do not reply.\n")
	return b.String()
}

func legalBasis(def *models.ReportDefinition) string {
	if def.LegalBasis != "" {
		return def.LegalBasis
	}
	if def.Entity.LegalBasis != "" {
		return def.Entity.LegalBasis
	}
	return "n/a"
}
