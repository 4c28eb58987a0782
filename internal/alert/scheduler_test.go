package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/database/dbtest"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) to() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		out = append(out, m.To.Email)
	}
	return out
}

type sweepFixture struct {
	ctx      context.Context
	store    *database.Store
	fx       dbtest.Fixture
	def      *models.ReportDefinition
	notifier *recordingNotifier
}

func newSweepFixture(t *testing.T) *sweepFixture {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)

	def := fx.Definition("MON-1", models.FrequencyMonthly)
	require.NoError(t, store.CreateDefinition(ctx, def))

	return &sweepFixture{ctx: ctx, store: store, fx: fx, def: def, notifier: &recordingNotifier{}}
}

func (f *sweepFixture) instance(t *testing.T, period string, due time.Time, status models.InstanceStatus) *models.ReportInstance {
	inst := &models.ReportInstance{DefinitionID: f.def.ID, Period: period, DueDate: due, Status: status}
	require.NoError(t, f.store.CreateInstance(f.ctx, inst))
	return inst
}

func (f *sweepFixture) alertType(t *testing.T, name string, daysBefore int, postDue bool) *models.AlertType {
	at := &models.AlertType{Name: name, DaysBeforeDue: daysBefore, PostDue: postDue, IsEnabled: true}
	require.NoError(t, f.store.CreateAlertType(f.ctx, at))
	return at
}

func (f *sweepFixture) scheduler(today time.Time) *Scheduler {
	now := today.Add(8 * time.Hour)
	return NewScheduler(f.store, f.notifier, clock.Fixed(now), zap.NewNop(), nil)
}

func TestSweepEscalatesDueTomorrow(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Due tomorrow", 1, false)
	inst := f.instance(t, "2024-12", clock.Date(2025, 1, 10), models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, 2, res.AlertsCreated)
	assert.Equal(t, []string{"ana@example.com", "sam@example.com"}, f.notifier.to())

	alerts, err := f.store.ListAlerts(f.ctx, database.AlertFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, models.AlertLevelUrgent, a.Level)
		assert.Equal(t, "2025-01-09", a.Day)
		assert.True(t, a.Sent)
		assert.Contains(t, a.Message, "TOMORROW")
	}
}

func TestSweepIsIdempotentWithinADay(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Overdue", 0, true)
	f.alertType(t, "Five days", 5, false)
	f.instance(t, "2024-11", clock.Date(2024, 12, 15), models.StatusInProgress)
	f.instance(t, "2024-12", clock.Date(2025, 1, 14), models.StatusPending)

	sched := f.scheduler(clock.Date(2025, 1, 9))
	first, err := sched.RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.AlertsCreated, "overdue escalates, five-day notice does not")

	second, err := sched.RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Triggered)
	assert.Zero(t, second.AlertsCreated)
	assert.Len(t, f.notifier.to(), 3)

	// Post-due alerts repeat on the next day.
	third, err := f.scheduler(clock.Date(2025, 1, 10)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, third.AlertsCreated)
}

func TestSweepSkipsClosedInstancesAndDisabledTypes(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Overdue", 0, true)
	disabled := f.alertType(t, "Ten days", 10, false)
	require.NoError(t, f.store.SetAlertTypeEnabled(f.ctx, disabled.ID, false))

	f.instance(t, "2024-10", clock.Date(2024, 11, 15), models.StatusSubmitted)
	f.instance(t, "2024-11", clock.Date(2024, 12, 15), models.StatusApproved)
	f.instance(t, "2024-12", clock.Date(2025, 1, 19), models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Instances)
	assert.Zero(t, res.Triggered)
	assert.Empty(t, f.notifier.to())
}

func TestSweepRecordsAlertsWhenDeliveryFails(t *testing.T) {
	f := newSweepFixture(t)
	f.notifier.err = errors.New("smtp unavailable")
	f.alertType(t, "Overdue", 0, true)
	inst := f.instance(t, "2024-11", clock.Date(2024, 12, 15), models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AlertsCreated)
	assert.Equal(t, 2, res.NotifyFailures)

	alerts, err := f.store.ListAlerts(f.ctx, database.AlertFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestSweepCopiesExtraRecipients(t *testing.T) {
	f := newSweepFixture(t)
	require.NoError(t, f.store.ReplaceRecipients(f.ctx, f.def.ID, []string{"audit@example.com"}))
	f.alertType(t, "Thirty days", 30, false)
	f.instance(t, "2025-01", clock.Date(2025, 2, 8), models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlertsCreated)
	assert.Equal(t, []string{"ana@example.com", "audit@example.com"}, f.notifier.to())
}

func TestSweepDueDateFallback(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Overdue", 0, true)
	broken := f.instance(t, "January", time.Time{}, models.StatusPending)
	missing := f.instance(t, "2024-11", time.Time{}, models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fallbacks)
	assert.Equal(t, 2, res.AlertsCreated, "recomputed 2024-11 due date is past")

	reloaded, err := f.store.GetInstance(f.ctx, missing.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Date(2024, 12, 15), reloaded.DueDate)

	reloaded, err = f.store.GetInstance(f.ctx, broken.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.DueDate.IsZero(), "fallback is not persisted")
}

func TestSweepFallbackDueDateInMessage(t *testing.T) {
	f := newSweepFixture(t)
	f.alertType(t, "Month ahead", 31, false)
	broken := f.instance(t, "January", time.Time{}, models.StatusPending)

	res, err := f.scheduler(clock.Date(2025, 1, 9)).RunDailySweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fallbacks)

	alerts, err := f.store.ListAlerts(f.ctx, database.AlertFilter{InstanceID: broken.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "2025-02-09")
	assert.NotContains(t, alerts[0].Message, "0001-01-01")

	reloaded, err := f.store.GetInstance(f.ctx, broken.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.DueDate.IsZero())
}

func TestGenerateManualAlert(t *testing.T) {
	f := newSweepFixture(t)
	reminder := f.alertType(t, "Thirty days", 30, false)
	inst := f.instance(t, "2025-01", clock.Date(2025, 2, 10), models.StatusPending)
	sched := f.scheduler(clock.Date(2025, 1, 9))

	alerts, err := sched.GenerateManualAlert(f.ctx, inst.ID, reminder.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, f.fx.Responsible.ID, alerts[0].RecipientID)
	assert.Contains(t, alerts[0].Message, "due in 32 days")

	again, err := sched.GenerateManualAlert(f.ctx, inst.ID, reminder.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = sched.GenerateManualAlert(f.ctx, 999, reminder.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = sched.GenerateManualAlert(f.ctx, inst.ID, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
