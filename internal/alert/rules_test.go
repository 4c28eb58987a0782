package alert

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database/dbtest"
	"github.com/reporttrack/internal/models"
)

func TestCreateDefaultTypesOnce(t *testing.T) {
	ctx := context.Background()
	m := NewTypeManager(dbtest.New(t), afero.NewMemMapFs())

	created, err := m.CreateDefaultTypes(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.CreateDefaultTypes(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	types, err := m.ListTypes(ctx, nil)
	require.NoError(t, err)
	require.Len(t, types, len(DefaultTypes()))
	assert.Equal(t, "Reminder 30 days", types[0].Name)
	assert.Equal(t, "Overdue", types[len(types)-1].Name)
	assert.True(t, types[len(types)-1].PostDue)
}

func TestTypeValidationAndToggle(t *testing.T) {
	ctx := context.Background()
	m := NewTypeManager(dbtest.New(t), afero.NewMemMapFs())

	_, err := m.CreateType(ctx, AlertTypeInput{Name: ""})
	assert.ErrorIs(t, err, ErrInvalidAlertType)
	_, err = m.CreateType(ctx, AlertTypeInput{Name: "Bad", DaysBeforeDue: -1})
	assert.ErrorIs(t, err, ErrInvalidAlertType)
	_, err = m.CreateType(ctx, AlertTypeInput{Name: "Bad color", Color: "red"})
	assert.ErrorIs(t, err, ErrInvalidAlertType)

	off := false
	typ, err := m.CreateType(ctx, AlertTypeInput{Name: "Quiet", DaysBeforeDue: 7, IsEnabled: &off})
	require.NoError(t, err)

	enabled := true
	active, err := m.ListTypes(ctx, &enabled)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, m.EnableType(ctx, typ.ID))
	active, err = m.ListTypes(ctx, &enabled)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	updated, err := m.UpdateType(ctx, typ.ID, AlertTypeInput{Name: "Quiet", PostDue: true, DaysBeforeDue: 3})
	require.NoError(t, err)
	assert.Zero(t, updated.DaysBeforeDue)
	assert.Equal(t, models.AlertLevelCritical, updated.Level())

	require.NoError(t, m.DeleteType(ctx, typ.ID))
	_, err = m.GetType(ctx, typ.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestImportExportTypes(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	src := NewTypeManager(dbtest.New(t), fs)
	_, err := src.CreateDefaultTypes(ctx)
	require.NoError(t, err)
	require.NoError(t, src.DisableType(ctx, 1))
	require.NoError(t, src.ExportTypesToFile(ctx, "/export/types.json"))

	dst := NewTypeManager(dbtest.New(t), fs)
	n, err := dst.ImportTypesFromFile(ctx, "/export/types.json")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTypes()), n)

	enabled := true
	active, err := dst.ListTypes(ctx, &enabled)
	require.NoError(t, err)
	assert.Len(t, active, len(DefaultTypes())-1)

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`[{"name":""}]`), 0644))
	_, err = dst.ImportTypesFromFile(ctx, "/bad.json")
	assert.ErrorIs(t, err, ErrInvalidAlertType)

	_, err = dst.ImportTypesFromFile(ctx, "/missing.json")
	assert.Error(t, err)
}

func TestInbox(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Overdue", 0, true)
	f.instance(t, "2024-11", clock.Date(2024, 12, 15), models.StatusPending)
	_, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)

	inbox := NewInbox(f.store, clock.Fixed(time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)))

	critical, err := inbox.UnreadCritical(f.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, critical)

	mine, err := inbox.List(f.ctx, f.fx.Responsible.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NoError(t, inbox.MarkRead(f.ctx, f.fx.Responsible.ID, mine[0].ID))

	n, err := inbox.MarkAllRead(f.ctx, f.fx.Supervisor.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	critical, err = inbox.UnreadCritical(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, critical)

	all, err := inbox.ForInstance(f.ctx, mine[0].InstanceID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
