package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/duedate"
	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
)

// SweepResult summarizes one run of the daily sweep.
type SweepResult struct {
	Day            string `json:"day"`
	Instances      int    `json:"instances"`
	Triggered      int    `json:"triggered"`
	AlertsCreated  int    `json:"alerts_created"`
	NotifyFailures int    `json:"notify_failures"`
	Fallbacks      int    `json:"fallbacks"`
	Errors         int    `json:"errors"`
}

// Scheduler raises alerts for open report instances as their due dates approach
// and pass. At most one alert exists per (instance, type, recipient, day), so
// the sweep can be re-run safely.
type Scheduler struct {
	store    *database.Store
	notifier notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewScheduler(store *database.Store, notifier notify.Notifier, c clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clock:    c,
		logger:   logger,
		metrics:  m,
	}
}

// trigger is an alert type that fired for an instance, pending persistence.
type trigger struct {
	alertType    models.AlertType
	daysUntilDue int
}

// delivery is a committed alert waiting to be handed to the notifier.
type delivery struct {
	alert     models.Alert
	recipient notify.Recipient
	copies    []string
}

// RunDailySweep evaluates every open instance against the enabled alert types.
// Failures on a single instance are logged and counted; only failures to load
// the work set abort the sweep.
func (s *Scheduler) RunDailySweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	today := clock.Today(s.clock)
	result := SweepResult{Day: today.Format(dateLayout)}

	instances, err := s.store.ListOpenInstances(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load open instances: %w", err)
	}
	enabled := true
	types, err := s.store.ListAlertTypes(ctx, &enabled)
	if err != nil {
		return result, fmt.Errorf("failed to load alert types: %w", err)
	}

	s.logger.Info("Starting alert sweep",
		zap.String("day", result.Day),
		zap.Int("instances", len(instances)),
		zap.Int("alert_types", len(types)))

	for i := range instances {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		inst := &instances[i]
		result.Instances++

		due, fallback := s.resolveDueDate(ctx, inst, today)
		if fallback {
			result.Fallbacks++
		}
		daysUntilDue := clock.DaysBetween(today, due)

		var fired []trigger
		for _, t := range types {
			if ShouldTrigger(&t, daysUntilDue) {
				fired = append(fired, trigger{alertType: t, daysUntilDue: daysUntilDue})
			}
		}
		if len(fired) == 0 {
			continue
		}
		result.Triggered += len(fired)

		deliveries, err := s.record(ctx, inst, fired, today)
		if err != nil {
			result.Errors++
			s.logger.Error("Failed to record alerts",
				zap.Uint("instance_id", inst.ID),
				zap.Error(err))
			continue
		}
		result.AlertsCreated += len(deliveries)
		result.NotifyFailures += s.deliver(ctx, inst, deliveries)
	}

	s.metrics.ObserveSweep(time.Since(started))
	s.logger.Info("Alert sweep completed",
		zap.String("day", result.Day),
		zap.Int("alerts_created", result.AlertsCreated),
		zap.Int("notify_failures", result.NotifyFailures),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

// GenerateManualAlert raises alerts of one type for one instance, regardless of
// the trigger rule. The daily dedup still applies. It returns the alerts created.
func (s *Scheduler) GenerateManualAlert(ctx context.Context, instanceID, alertTypeID uint) ([]models.Alert, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetAlertType(ctx, alertTypeID)
	if err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	due, _ := s.resolveDueDate(ctx, inst, today)
	deliveries, err := s.record(ctx, inst, []trigger{{alertType: *t, daysUntilDue: clock.DaysBetween(today, due)}}, today)
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, inst, deliveries)

	alerts := make([]models.Alert, 0, len(deliveries))
	for _, d := range deliveries {
		alerts = append(alerts, d.alert)
	}
	return alerts, nil
}

// resolveDueDate returns the instance's due date, recomputing it when it was
// never stored. When it cannot be computed a fallback one month from today is
// set on inst in memory for this run only and fallback is reported.
func (s *Scheduler) resolveDueDate(ctx context.Context, inst *models.ReportInstance, today time.Time) (due time.Time, fallback bool) {
	if !inst.DueDate.IsZero() {
		return clock.DateOf(inst.DueDate), false
	}

	var err error
	if inst.Definition.ID == 0 {
		err = fmt.Errorf("definition %d: %w", inst.DefinitionID, models.ErrNotFound)
	} else {
		due, err = duedate.ForDefinition(&inst.Definition, inst.Period)
	}
	if err != nil {
		due = today.AddDate(0, 1, 0)
		s.logger.Warn("Using fallback due date",
			zap.Uint("instance_id", inst.ID),
			zap.String("period", inst.Period),
			zap.Time("fallback", due),
			zap.Error(err))
		inst.DueDate = due
		return due, true
	}

	inst.DueDate = due
	if err := s.store.SaveInstance(ctx, inst); err != nil {
		s.logger.Warn("Failed to persist recomputed due date",
			zap.Uint("instance_id", inst.ID),
			zap.Error(err))
	}
	return due, false
}

// record persists the alerts for all fired types of one instance in a single
// transaction. Alerts are stored as sent: delivery is attempted once, after commit.
func (s *Scheduler) record(ctx context.Context, inst *models.ReportInstance, fired []trigger, today time.Time) ([]delivery, error) {
	def := &inst.Definition
	if def.ID == 0 || def.Responsible.ID == 0 {
		return nil, fmt.Errorf("instance %d has no resolvable responsible party: %w", inst.ID, models.ErrNotFound)
	}

	day := today.Format(dateLayout)
	now := s.clock.Now()

	var out []delivery
	err := s.store.Transaction(ctx, func(tx *database.Store) error {
		out = out[:0]
		for _, f := range fired {
			t := f.alertType
			exists, err := tx.AlertExists(ctx, inst.ID, t.ID, day)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			recipients := []models.User{def.Responsible}
			if t.Escalates() && def.Supervisor.ID != 0 && def.Supervisor.ID != def.Responsible.ID {
				recipients = append(recipients, def.Supervisor)
			}

			message := RenderMessage(inst, &t, f.daysUntilDue)
			for i, user := range recipients {
				sentAt := now
				alert := models.Alert{
					InstanceID:  inst.ID,
					AlertTypeID: t.ID,
					AlertType:   t,
					RecipientID: user.ID,
					Day:         day,
					Level:       t.Level(),
					ScheduledAt: now,
					Sent:        true,
					SentAt:      &sentAt,
					Subject:     Subject(inst, &t),
					Message:     message,
				}
				created, err := tx.CreateAlert(ctx, &alert)
				if err != nil {
					return err
				}
				if !created {
					continue
				}
				d := delivery{
					alert:     alert,
					recipient: notify.Recipient{Name: user.DisplayName(), Email: user.Email},
				}
				if i == 0 {
					for _, extra := range def.ExtraRecipients {
						d.copies = append(d.copies, extra.Email)
					}
				}
				out = append(out, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range out {
		s.metrics.AlertCreated(string(d.alert.Level))
		s.logger.Info("Alert generated",
			zap.String("type", d.alert.AlertType.Name),
			zap.String("recipient", d.recipient.Name),
			zap.Uint("instance_id", inst.ID))
	}
	return out, nil
}

// deliver hands committed alerts to the notifier and returns the number of
// failed sends. Failures never affect the recorded alerts.
func (s *Scheduler) deliver(ctx context.Context, inst *models.ReportInstance, deliveries []delivery) int {
	failures := 0
	send := func(to notify.Recipient, d delivery) {
		msg := notify.Message{
			To:      to,
			Subject: d.alert.Subject,
			Body:    RenderBody(to.Name, d.alert.Message, inst),
			Level:   d.alert.Level,
			Color:   d.alert.AlertType.Color,
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			failures++
			if !errors.Is(err, models.ErrDeliveryFailure) {
				err = fmt.Errorf("%w: %w", models.ErrDeliveryFailure, err)
			}
			s.logger.Warn("Failed to deliver alert",
				zap.Uint("alert_id", d.alert.ID),
				zap.String("to", to.Email),
				zap.Error(err))
		}
	}

	for _, d := range deliveries {
		send(d.recipient, d)
		for _, email := range d.copies {
			send(notify.Recipient{Name: email, Email: email}, d)
		}
	}
	return failures
}
