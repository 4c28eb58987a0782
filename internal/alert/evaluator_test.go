package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/models"
)

func TestShouldTrigger(t *testing.T) {
	reminder := &models.AlertType{DaysBeforeDue: 5}
	overdue := &models.AlertType{PostDue: true}

	tests := []struct {
		name  string
		typ   *models.AlertType
		days  int
		fires bool
	}{
		{"pre-due exact day", reminder, 5, true},
		{"pre-due a day early", reminder, 6, false},
		{"pre-due a day late", reminder, 4, false},
		{"post-due on due date", overdue, 0, false},
		{"post-due one day late", overdue, -1, true},
		{"post-due long overdue", overdue, -40, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fires, ShouldTrigger(tt.typ, tt.days))
		})
	}
}

func TestRenderMessageTemplates(t *testing.T) {
	inst := &models.ReportInstance{
		Period:  "2025-01",
		DueDate: clock.Date(2025, 2, 10),
		Definition: models.ReportDefinition{
			Name:       "Monthly tariff return",
			LegalBasis: "Resolution 123 of 2020",
			Entity:     models.Entity{Name: "Acme Energy"},
		},
	}

	msg := RenderMessage(inst, &models.AlertType{PostDue: true}, -3)
	assert.Contains(t, msg, "CRITICAL")
	assert.Contains(t, msg, "OVERDUE by 3 days")
	assert.Contains(t, msg, "2025-02-10")

	msg = RenderMessage(inst, &models.AlertType{DaysBeforeDue: 1}, 1)
	assert.Contains(t, msg, "URGENT")
	assert.Contains(t, msg, "TOMORROW")

	msg = RenderMessage(inst, &models.AlertType{DaysBeforeDue: 5}, 5)
	assert.Contains(t, msg, "WARNING")
	assert.Contains(t, msg, "due in 5 days")
	assert.NotContains(t, msg, "Resolution 123")

	msg = RenderMessage(inst, &models.AlertType{DaysBeforeDue: 30}, 30)
	assert.Contains(t, msg, "REMINDER")
	assert.Contains(t, msg, "Monthly tariff return")
	assert.Contains(t, msg, "Acme Energy")
	assert.Contains(t, msg, "period 2025-01")
	assert.Contains(t, msg, "Legal basis: Resolution 123 of 2020")
}

func TestRenderMessagePostDueBeforeDueDate(t *testing.T) {
	inst := &models.ReportInstance{
		Period:     "2025-01",
		DueDate:    clock.Date(2025, 2, 10),
		Definition: models.ReportDefinition{Name: "Monthly tariff return"},
	}
	overdue := &models.AlertType{PostDue: true}

	msg := RenderMessage(inst, overdue, 1)
	assert.Contains(t, msg, "URGENT")
	assert.NotContains(t, msg, "OVERDUE")

	msg = RenderMessage(inst, overdue, 0)
	assert.Contains(t, msg, "due in 0 days")
	assert.NotContains(t, msg, "OVERDUE by 0 days")

	msg = RenderMessage(inst, overdue, 12)
	assert.Contains(t, msg, "REMINDER")
}

func TestRenderBody(t *testing.T) {
	inst := &models.ReportInstance{
		Period:  "2025-Q1",
		Status:  models.StatusPending,
		DueDate: clock.Date(2025, 4, 15),
		Definition: models.ReportDefinition{
			Name:            "Quarterly statement",
			InstructionsURL: "https://regulator.example/guide",
			Entity:          models.Entity{Name: "Acme Energy", LegalBasis: "Law 142"},
		},
	}
	body := RenderBody("Ana", "Something is due.", inst)
	assert.Contains(t, body, "Hello Ana,")
	assert.Contains(t, body, "Something is due.")
	assert.Contains(t, body, "Law 142")
	assert.Contains(t, body, "https://regulator.example/guide")
	assert.Equal(t, "[URGENT] Due tomorrow - Quarterly statement",
		Subject(inst, &models.AlertType{Name: "Due tomorrow", DaysBeforeDue: 1}))
}
