// Package scheduler runs the periodic jobs: the daily alert sweep, instance
// generation catch-up and the weekly digest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/metrics"
)

const jobTimeout = 30 * time.Minute

// ErrUnknownJob is returned by RunNow for names that were never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is a named unit of periodic work. Schedule is a six-field cron expression
// (seconds first) or a descriptor such as "@daily".
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// JobStatus reports the bookkeeping of a registered job.
type JobStatus struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`
}

type entry struct {
	job    Job
	id     cron.EntryID
	mu     sync.Mutex // serializes runs of the same job
	status JobStatus
}

type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*entry
}

func New(loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl)),
			cron.WithLogger(cl),
		),
		logger:  logger,
		metrics: m,
		entries: make(map[string]*entry),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e := &entry{job: job, status: JobStatus{Name: job.Name, Schedule: job.Schedule}}
	id, err := s.cron.AddFunc(job.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		_ = s.execute(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
	}
	e.id = id
	s.entries[job.Name] = e

	s.logger.Debug("Job scheduled",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.entries)))
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)
	s.metrics.JobRun(e.job.Name, err)

	e.status.LastRun = start
	e.status.RunCount++
	if err != nil {
		e.status.ErrorCount++
		e.status.LastError = err.Error()
		s.logger.Error("Scheduled job failed",
			zap.String("job", e.job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}
	e.status.LastError = ""
	s.logger.Info("Scheduled job completed",
		zap.String("job", e.job.Name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		status := e.status
		e.mu.Unlock()
		status.NextRun = s.cron.Entry(e.id).Next
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
