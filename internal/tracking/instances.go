package tracking

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/duedate"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
	"github.com/reporttrack/internal/storage"
)

// RecordInstance is the change history record type of report instances.
const RecordInstance = "report_instance"

// InstanceInput creates an instance outside of recurrence, e.g. for a corrective filing.
type InstanceInput struct {
	DefinitionID uint   `json:"definition_id" binding:"required"`
	Period       string `json:"period" binding:"required"`
	Notes        string `json:"notes"`
}

// InstanceUpdate carries the fields to change; nil fields are left alone.
type InstanceUpdate struct {
	Status      *models.InstanceStatus `json:"status"`
	Notes       *string                `json:"notes"`
	EvidenceURL *string                `json:"evidence_url"`
	ReportURL   *string                `json:"report_url"`
	SubmittedAt *time.Time             `json:"submitted_at"`
}

type InstanceService struct {
	store    *database.Store
	files    *storage.FileStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewInstanceService(store *database.Store, files *storage.FileStore, n notify.Notifier, c clock.Clock, logger *zap.Logger) *InstanceService {
	return &InstanceService{store: store, files: files, notifier: n, clock: c, logger: logger}
}

func (s *InstanceService) Get(ctx context.Context, id uint) (*models.ReportInstance, error) {
	return s.store.GetInstance(ctx, id)
}

// Create adds an instance for an explicit period. The due date is computed from
// the definition and calculation errors are returned to the caller.
func (s *InstanceService) Create(ctx context.Context, in InstanceInput) (*models.ReportInstance, error) {
	def, err := s.store.GetDefinition(ctx, in.DefinitionID)
	if err != nil {
		return nil, err
	}
	due, err := duedate.ForDefinition(def, in.Period)
	if err != nil {
		return nil, err
	}
	exists, err := s.store.PeriodExists(ctx, def.ID, in.Period)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %s", models.ErrDuplicatePeriod, def.Code, in.Period)
	}

	zero := 0
	inst := &models.ReportInstance{
		DefinitionID:  def.ID,
		Period:        in.Period,
		DueDate:       due,
		Status:        models.StatusPending,
		DeviationDays: &zero,
		Notes:         in.Notes,
	}
	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance %s of %s: %w", in.Period, def.Code, err)
	}
	return s.store.GetInstance(ctx, inst.ID)
}

type change struct {
	field    string
	old, new string
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Update applies u, records every changed field in the change history and notifies
// both responsible parties when the status changes.
func (s *InstanceService) Update(ctx context.Context, id, actorID uint, u InstanceUpdate) (*models.ReportInstance, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status != nil && !u.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, *u.Status)
	}

	var changes []change
	oldStatus := inst.Status
	if u.Status != nil && *u.Status != inst.Status {
		changes = append(changes, change{"status", string(inst.Status), string(*u.Status)})
		inst.Status = *u.Status
	}
	if u.Notes != nil && *u.Notes != inst.Notes {
		changes = append(changes, change{"notes", inst.Notes, *u.Notes})
		inst.Notes = *u.Notes
	}
	if u.EvidenceURL != nil && *u.EvidenceURL != inst.EvidenceURL {
		changes = append(changes, change{"evidence_url", inst.EvidenceURL, *u.EvidenceURL})
		inst.EvidenceURL = *u.EvidenceURL
	}
	if u.ReportURL != nil && *u.ReportURL != inst.ReportURL {
		changes = append(changes, change{"report_url", inst.ReportURL, *u.ReportURL})
		inst.ReportURL = *u.ReportURL
	}
	if u.SubmittedAt != nil && formatTime(u.SubmittedAt) != formatTime(inst.SubmittedAt) {
		changes = append(changes, change{"submitted_at", formatTime(inst.SubmittedAt), formatTime(u.SubmittedAt)})
		at := *u.SubmittedAt
		inst.SubmittedAt = &at
	}
	if inst.SubmittedAt != nil {
		deviation := duedate.DeviationDays(*inst.SubmittedAt, inst.DueDate)
		if deviation != inst.Deviation() {
			changes = append(changes, change{"deviation_days", strconv.Itoa(inst.Deviation()), strconv.Itoa(deviation)})
		}
		inst.DeviationDays = &deviation
	}
	if len(changes) == 0 {
		return inst, nil
	}

	if err := s.save(ctx, inst, actorID, changes); err != nil {
		return nil, err
	}
	if inst.Status != oldStatus {
		s.notifyStatus(ctx, inst, oldStatus)
	}
	return s.store.GetInstance(ctx, inst.ID)
}

func (s *InstanceService) save(ctx context.Context, inst *models.ReportInstance, actorID uint, changes []change) error {
	now := s.clock.Now()
	var actor *uint
	if actorID != 0 {
		actor = &actorID
	}
	logs := make([]models.ChangeLog, 0, len(changes))
	for _, c := range changes {
		logs = append(logs, models.ChangeLog{
			RecordType: RecordInstance,
			RecordID:   inst.ID,
			UserID:     actor,
			Field:      c.field,
			OldValue:   c.old,
			NewValue:   c.new,
			ChangedAt:  now,
		})
	}
	err := s.store.Transaction(ctx, func(tx *database.Store) error {
		if err := tx.SaveInstance(ctx, inst); err != nil {
			return err
		}
		return tx.RecordChanges(ctx, logs)
	})
	if err != nil {
		return fmt.Errorf("failed to update instance %d: %w", inst.ID, err)
	}
	return nil
}

// notifyStatus tells the responsible and supervising parties about a status change.
// Delivery failures are logged only.
func (s *InstanceService) notifyStatus(ctx context.Context, inst *models.ReportInstance, from models.InstanceStatus) {
	if s.notifier == nil {
		return
	}
	def := &inst.Definition
	recipients := []models.User{def.Responsible}
	if def.SupervisorID != def.ResponsibleID {
		recipients = append(recipients, def.Supervisor)
	}
	subject := fmt.Sprintf("[STATUS] %s - %s", def.Name, inst.Period)
	for _, u := range recipients {
		if u.Email == "" {
			continue
		}
		body := fmt.Sprintf("Dear %s,\n\nReport %s (%s) for period %s changed from %s to %s.\nDue date: %s\n",
			u.DisplayName(), def.Name, def.Code, inst.Period, from, inst.Status, inst.DueDate.Format("2006-01-02"))
		msg := notify.Message{
			To:      notify.Recipient{Name: u.DisplayName(), Email: u.Email},
			Subject: subject,
			Body:    body,
			Level:   models.AlertLevelInfo,
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("Failed to send status notification",
				zap.Uint("instance", inst.ID),
				zap.String("to", u.Email),
				zap.Error(err))
		}
	}
}

// Submission describes an uploaded report file.
type Submission struct {
	FileName    string
	ContentType string
	Notes       string
}

// Submit stores the report file and marks the instance SUBMITTED as of now.
func (s *InstanceService) Submit(ctx context.Context, id, actorID uint, r io.Reader, sub Submission) (*models.ReportInstance, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status == models.StatusApproved {
		return nil, fmt.Errorf("instance %d: %w", id, models.ErrAlreadyApproved)
	}

	stored, err := s.files.Upload(ctx, r, storage.Upload{
		FileName:    sub.FileName,
		ContentType: sub.ContentType,
		Folder:      inst.Definition.Entity.TaxID,
	})
	if err != nil {
		return nil, err
	}
	previousFile := inst.FileID

	inst.FileID = stored.FileID
	inst.FileName = sub.FileName
	updated, err := s.markSubmitted(ctx, inst, actorID, stored.ViewURL, sub.Notes)
	if err != nil {
		if delErr := s.files.Delete(ctx, stored.FileID); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("file", stored.FileID), zap.Error(delErr))
		}
		return nil, err
	}
	if previousFile != "" && previousFile != stored.FileID {
		if err := s.files.Delete(ctx, previousFile); err != nil {
			s.logger.Warn("Failed to remove replaced upload", zap.String("file", previousFile), zap.Error(err))
		}
	}
	return updated, nil
}

// SubmitWithLink marks the instance SUBMITTED with an externally hosted report.
func (s *InstanceService) SubmitWithLink(ctx context.Context, id, actorID uint, link, notes string) (*models.ReportInstance, error) {
	if strings.TrimSpace(link) == "" {
		return nil, fmt.Errorf("%w: empty report link", models.ErrInvalidInput)
	}
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status == models.StatusApproved {
		return nil, fmt.Errorf("instance %d: %w", id, models.ErrAlreadyApproved)
	}
	return s.markSubmitted(ctx, inst, actorID, link, notes)
}

func (s *InstanceService) markSubmitted(ctx context.Context, inst *models.ReportInstance, actorID uint, url, notes string) (*models.ReportInstance, error) {
	now := s.clock.Now()
	oldStatus := inst.Status
	deviation := duedate.DeviationDays(clock.DateOf(now), inst.DueDate)

	changes := []change{
		{"status", string(inst.Status), string(models.StatusSubmitted)},
		{"report_url", inst.ReportURL, url},
		{"submitted_at", formatTime(inst.SubmittedAt), formatTime(&now)},
		{"deviation_days", strconv.Itoa(inst.Deviation()), strconv.Itoa(deviation)},
	}
	inst.Status = models.StatusSubmitted
	inst.ReportURL = url
	inst.SubmittedAt = &now
	inst.DeviationDays = &deviation
	if actorID != 0 {
		inst.SubmittedByID = &actorID
	}
	if notes != "" {
		changes = append(changes, change{"notes", inst.Notes, notes})
		inst.Notes = notes
	}

	if err := s.save(ctx, inst, actorID, changes); err != nil {
		return nil, err
	}
	s.logger.Info("Report submitted",
		zap.Uint("instance", inst.ID),
		zap.String("period", inst.Period),
		zap.Int("deviation_days", deviation))
	if oldStatus != models.StatusSubmitted {
		s.notifyStatus(ctx, inst, oldStatus)
	}
	return s.store.GetInstance(ctx, inst.ID)
}

// Approve moves a submitted instance to APPROVED.
func (s *InstanceService) Approve(ctx context.Context, id, actorID uint) (*models.ReportInstance, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inst.Status {
	case models.StatusApproved:
		return nil, fmt.Errorf("instance %d: %w", id, models.ErrAlreadyApproved)
	case models.StatusSubmitted:
	default:
		return nil, fmt.Errorf("%w: instance %d is %s, only submitted reports can be approved", models.ErrInvalidStatus, id, inst.Status)
	}
	approved := models.StatusApproved
	return s.Update(ctx, id, actorID, InstanceUpdate{Status: &approved})
}

// Delete removes the instance, its alerts and its stored file.
func (s *InstanceService) Delete(ctx context.Context, id uint) error {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteInstance(ctx, id); err != nil {
		return err
	}
	if inst.FileID != "" {
		if err := s.files.Delete(ctx, inst.FileID); err != nil {
			s.logger.Warn("Failed to remove report file", zap.String("file", inst.FileID), zap.Error(err))
		}
	}
	s.logger.Info("Deleted report instance", zap.Uint("id", id), zap.String("period", inst.Period))
	return nil
}

// Changes returns the change history of an instance, oldest first.
func (s *InstanceService) Changes(ctx context.Context, id uint) ([]models.ChangeLog, error) {
	return s.store.ListChanges(ctx, RecordInstance, id)
}

// Pending lists PENDING and IN_PROGRESS instances by due date.
func (s *InstanceService) Pending(ctx context.Context) ([]models.ReportInstance, error) {
	return s.store.ListInstances(ctx, database.InstanceFilter{
		Statuses: []models.InstanceStatus{models.StatusPending, models.StatusInProgress},
	})
}

// Overdue lists open instances whose due date has passed.
func (s *InstanceService) Overdue(ctx context.Context) ([]models.ReportInstance, error) {
	today := clock.Today(s.clock)
	return s.store.ListInstances(ctx, database.InstanceFilter{
		DueTo:           today.AddDate(0, 0, -1),
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
}

// Upcoming lists open instances due within the next days, today included.
func (s *InstanceService) Upcoming(ctx context.Context, days int) ([]models.ReportInstance, error) {
	if days <= 0 {
		days = 7
	}
	today := clock.Today(s.clock)
	return s.store.ListInstances(ctx, database.InstanceFilter{
		DueFrom:         today,
		DueTo:           today.AddDate(0, 0, days),
		ExcludeStatuses: []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	})
}

// HistoryFilter narrows History. Month is only applied together with Year.
type HistoryFilter struct {
	DefinitionID uint
	EntityID     uint
	Year         int
	Month        int
}

// History lists submitted and approved instances, most recently due first.
func (s *InstanceService) History(ctx context.Context, f HistoryFilter) ([]models.ReportInstance, error) {
	filter := database.InstanceFilter{
		DefinitionID: f.DefinitionID,
		EntityID:     f.EntityID,
		Statuses:     []models.InstanceStatus{models.StatusSubmitted, models.StatusApproved},
	}
	if f.Year > 0 {
		if f.Month >= 1 && f.Month <= 12 {
			filter.DueFrom = clock.Date(f.Year, time.Month(f.Month), 1)
			filter.DueTo = filter.DueFrom.AddDate(0, 1, -1)
		} else {
			filter.DueFrom = clock.Date(f.Year, time.January, 1)
			filter.DueTo = clock.Date(f.Year, time.December, 31)
		}
	}
	instances, err := s.store.ListInstances(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].DueDate.After(instances[j].DueDate)
	})
	return instances, nil
}

// CalendarFilter narrows Calendar by the definition's owner and schedule.
type CalendarFilter struct {
	EntityID      uint
	ResponsibleID uint
	SupervisorID  uint
	Frequency     models.Frequency
}

// Calendar lists the instances due in the given month.
func (s *InstanceService) Calendar(ctx context.Context, year int, month time.Month, f CalendarFilter) ([]models.ReportInstance, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d out of range", models.ErrInvalidInput, month)
	}
	from := clock.Date(year, month, 1)
	return s.store.ListInstances(ctx, database.InstanceFilter{
		EntityID:      f.EntityID,
		ResponsibleID: f.ResponsibleID,
		SupervisorID:  f.SupervisorID,
		Frequency:     f.Frequency,
		DueFrom:       from,
		DueTo:         from.AddDate(0, 1, -1),
	})
}

// MyCalendar is Calendar scoped by role: admins see everything, supervisors the
// reports they supervise, everyone else the reports they are responsible for.
func (s *InstanceService) MyCalendar(ctx context.Context, user *models.User, year int, month time.Month) ([]models.ReportInstance, error) {
	var f CalendarFilter
	switch user.Role {
	case models.RoleAdmin:
	case models.RoleSupervisor:
		f.SupervisorID = user.ID
	default:
		f.ResponsibleID = user.ID
	}
	return s.Calendar(ctx, year, month, f)
}

// Search passes an arbitrary filter through to the store.
func (s *InstanceService) Search(ctx context.Context, f database.InstanceFilter) ([]models.ReportInstance, error) {
	return s.store.ListInstances(ctx, f)
}
