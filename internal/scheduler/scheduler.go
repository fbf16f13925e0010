package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Pruner removes archived data older than a cutoff
type Pruner interface {
	Prune(cutoff time.Time) (int64, error)
}

// jobTimeout bounds a single job run
const jobTimeout = 30 * time.Minute

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	jobs     map[string]cron.EntryID
	timezone *time.Location
	log      logrus.FieldLogger
	now      func() time.Time
}

// New creates a new scheduler with the given timezone. An empty timezone
// means local time.
func New(timezone string, log logrus.FieldLogger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
		}
	}

	log = log.WithField("component", "scheduler")
	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		log:      log,
		now:      time.Now,
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 3 * * *" (at 3:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			s.log.WithError(err).WithField("job", name).Error("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("added job")
	return nil
}

// AddPruneJob removes archived scrapes older than retention on schedule
func (s *Scheduler) AddPruneJob(schedule string, retention time.Duration, p Pruner) error {
	if retention <= 0 {
		return fmt.Errorf("retention must be positive, got %v", retention)
	}
	return s.AddJob("prune", schedule, s.pruneJob(retention, p))
}

func (s *Scheduler) pruneJob(retention time.Duration, p Pruner) Job {
	return func(ctx context.Context) error {
		cutoff := s.now().Add(-retention)
		n, err := p.Prune(cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune archive: %w", err)
		}
		s.log.WithFields(logrus.Fields{"removed": n, "cutoff": cutoff.Format(time.RFC3339)}).Info("pruned archive")
		return nil
	}
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.log.WithField("job", name).Info("removed job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
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
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run"`
}
