package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/database/dbtest"
	"github.com/reporttrack/internal/models"
)

func TestDefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)

	def := fx.Definition("SUP-01", models.FrequencyMonthly)
	def.ExtraRecipients = []models.DefinitionRecipient{{Email: "audit@example.com"}}
	require.NoError(t, store.CreateDefinition(ctx, def))

	got, err := store.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Energy", got.Entity.Name)
	assert.Equal(t, "ana", got.Responsible.Username)
	assert.Equal(t, "sam", got.Supervisor.Username)
	require.Len(t, got.ExtraRecipients, 1)
	assert.Equal(t, "audit@example.com", got.ExtraRecipients[0].Email)

	require.NoError(t, store.ReplaceRecipients(ctx, def.ID, []string{"a@example.com", "b@example.com"}))
	got, err = store.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, got.ExtraRecipients, 2)

	require.NoError(t, store.SetDefinitionActive(ctx, def.ID, false))
	active, err := store.ListDefinitions(ctx, database.DefinitionFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGetMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)

	_, err := store.GetDefinition(ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.GetInstance(ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.GetAlertType(ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.DeleteInstance(ctx, 42), models.ErrNotFound)
}

func TestListInstancesFilters(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)

	monthly := fx.Definition("M-1", models.FrequencyMonthly)
	require.NoError(t, store.CreateDefinition(ctx, monthly))
	quarterly := fx.Definition("Q-1", models.FrequencyQuarterly)
	require.NoError(t, store.CreateDefinition(ctx, quarterly))

	seed := []models.ReportInstance{
		{DefinitionID: monthly.ID, Period: "2025-01", DueDate: clock.Date(2025, 2, 15), Status: models.StatusPending},
		{DefinitionID: monthly.ID, Period: "2025-02", DueDate: clock.Date(2025, 3, 15), Status: models.StatusSubmitted},
		{DefinitionID: quarterly.ID, Period: "2025-Q1", DueDate: clock.Date(2025, 4, 15), Status: models.StatusInProgress},
	}
	for i := range seed {
		require.NoError(t, store.CreateInstance(ctx, &seed[i]))
	}

	exists, err := store.PeriodExists(ctx, monthly.ID, "2025-01")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.PeriodExists(ctx, monthly.ID, "2025-03")
	require.NoError(t, err)
	assert.False(t, exists)

	tests := []struct {
		name    string
		filter  database.InstanceFilter
		periods []string
	}{
		{"all", database.InstanceFilter{}, []string{"2025-01", "2025-02", "2025-Q1"}},
		{"by definition", database.InstanceFilter{DefinitionID: quarterly.ID}, []string{"2025-Q1"}},
		{"by frequency", database.InstanceFilter{Frequency: models.FrequencyMonthly}, []string{"2025-01", "2025-02"}},
		{"by entity", database.InstanceFilter{EntityID: fx.Entity.ID}, []string{"2025-01", "2025-02", "2025-Q1"}},
		{"due window", database.InstanceFilter{DueFrom: clock.Date(2025, 3, 1), DueTo: clock.Date(2025, 3, 31)}, []string{"2025-02"}},
		{"statuses", database.InstanceFilter{Statuses: []models.InstanceStatus{models.StatusPending, models.StatusInProgress}}, []string{"2025-01", "2025-Q1"}},
		{"period text", database.InstanceFilter{PeriodContains: "Q"}, []string{"2025-Q1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListInstances(ctx, tt.filter)
			require.NoError(t, err)
			var periods []string
			for _, inst := range got {
				periods = append(periods, inst.Period)
			}
			assert.Equal(t, tt.periods, periods)
		})
	}

	open, err := store.ListOpenInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestDuplicatePeriodRejected(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)

	def := fx.Definition("M-1", models.FrequencyMonthly)
	require.NoError(t, store.CreateDefinition(ctx, def))

	first := &models.ReportInstance{DefinitionID: def.ID, Period: "2025-01", DueDate: clock.Date(2025, 2, 15)}
	require.NoError(t, store.CreateInstance(ctx, first))
	second := &models.ReportInstance{DefinitionID: def.ID, Period: "2025-01", DueDate: clock.Date(2025, 2, 15)}
	assert.Error(t, store.CreateInstance(ctx, second))
}

func TestAlertDedupAndInbox(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)

	def := fx.Definition("M-1", models.FrequencyMonthly)
	require.NoError(t, store.CreateDefinition(ctx, def))
	inst := &models.ReportInstance{DefinitionID: def.ID, Period: "2025-01", DueDate: clock.Date(2025, 2, 15)}
	require.NoError(t, store.CreateInstance(ctx, inst))

	overdue := &models.AlertType{Name: "Overdue", PostDue: true, IsEnabled: true}
	require.NoError(t, store.CreateAlertType(ctx, overdue))

	now := time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		InstanceID:  inst.ID,
		AlertTypeID: overdue.ID,
		RecipientID: fx.Responsible.ID,
		Day:         "2025-02-20",
		Level:       models.AlertLevelCritical,
		ScheduledAt: now,
	}
	created, err := store.CreateAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *alert
	dup.ID = 0
	created, err = store.CreateAlert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := store.AlertExists(ctx, inst.ID, overdue.ID, "2025-02-20")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.AlertExists(ctx, inst.ID, overdue.ID, "2025-02-21")
	require.NoError(t, err)
	assert.False(t, exists)

	critical, err := store.CountUnreadCritical(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, critical)

	unread, err := store.ListAlerts(ctx, database.AlertFilter{RecipientID: fx.Responsible.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Overdue", unread[0].AlertType.Name)

	assert.ErrorIs(t, store.MarkAlertRead(ctx, alert.ID, fx.Supervisor.ID, now), models.ErrNotFound)
	require.NoError(t, store.MarkAlertRead(ctx, alert.ID, fx.Responsible.ID, now))

	n, err := store.MarkAllRead(ctx, fx.Responsible.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	critical, err = store.CountUnreadCritical(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, critical)

	require.NoError(t, store.DeleteInstance(ctx, inst.ID))
	alerts, err := store.ListAlerts(ctx, database.AlertFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestChangeHistory(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)

	at := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordChanges(ctx, []models.ChangeLog{
		{RecordType: "report_instances", RecordID: 7, Field: "status", OldValue: "PENDING", NewValue: "IN_PROGRESS", ChangedAt: at},
		{RecordType: "report_instances", RecordID: 7, Field: "notes", OldValue: "", NewValue: "draft", ChangedAt: at},
		{RecordType: "report_instances", RecordID: 8, Field: "status", OldValue: "PENDING", NewValue: "SUBMITTED", ChangedAt: at},
	}))
	require.NoError(t, store.RecordChanges(ctx, nil))

	changes, err := store.ListChanges(ctx, "report_instances", 7)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "status", changes[0].Field)
}
