// Package scheduler runs pipeline jobs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 90 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	log      logrus.FieldLogger

	// JobTimeout caps each invocation. Zero means DefaultJobTimeout.
	JobTimeout time.Duration

	mu      sync.Mutex
	running map[string]bool
	parent  context.Context
	cancel  context.CancelFunc
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// New creates a new scheduler with the given timezone
func New(timezone string, log logrus.FieldLogger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	parent, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		log:      log.WithField("component", "scheduler"),
		running:  make(map[string]bool),
		parent:   parent,
		cancel:   cancel,
	}, nil
}

// Location returns the timezone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.timezone
}

// AddJob adds a job with a standard five-field cron schedule, e.g.
// "0 */2 * * *". A tick that fires while the previous run of the same job is
// still going is skipped.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			s.log.WithField("job", name).WithError(err).Error("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("job added")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.log.WithField("job", name).Info("job removed")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("stopping scheduler")
	s.cancel()
	return s.cron.Stop()
}

// RunNow immediately executes a job, honouring the same overlap rule as
// scheduled ticks.
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

// ErrBusy is returned by RunNow when the job is already running.
var ErrBusy = errors.New("job already running")

func (s *Scheduler) run(name string, job Job) error {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.WithField("job", name).Warn("previous run still in progress, skipping")
		return ErrBusy
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	timeout := s.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.parent, timeout)
	defer cancel()

	log := s.log.WithField("job", name)
	log.Info("starting job")
	start := time.Now()
	if err := job(ctx); err != nil {
		return err
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("job completed")
	return nil
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	return infos
}

// NextRun returns the next activation of schedule after from, evaluated in
// the scheduler's timezone.
func (s *Scheduler) NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return sched.Next(from.In(s.timezone)), nil
}
