// Package scheduler runs scraping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a scheduled task. Its context is cancelled when the scheduler
// stops.
type Job func(ctx context.Context) error

type entry struct {
	id      cron.EntryID
	job     Job
	running atomic.Bool
}

// Scheduler manages periodic tasks. A job whose previous run has not
// finished is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  logrus.FieldLogger
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New creates a scheduler. timeout bounds a single job run; zero means no
// limit.
func New(logger logrus.FieldLogger, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger:  logger,
		timeout: timeout,
		jobs:    make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers job under name with a standard five-field cron expression or a
// descriptor such as "@every 30m".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	e := &entry{job: job}
	id, err := s.cron.AddFunc(schedule, func() { s.run(name, e) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.id = id
	s.jobs[name] = e

	s.logger.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Job scheduled")
	return nil
}

// RemoveJob unschedules a job; a run in progress is not interrupted.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
		s.logger.WithField("job", name).Info("Job removed")
	}
}

// RunNow runs a scheduled job immediately, subject to the same overlap rule.
// It reports whether the job ran.
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %s", name)
	}
	return s.run(name, e)
}

func (s *Scheduler) run(name string, e *entry) (bool, error) {
	log := s.logger.WithField("job", name)
	if !e.running.CompareAndSwap(false, true) {
		log.Warn("Previous run still in progress, skipping")
		return false, nil
	}
	defer e.running.Store(false)

	s.running.Add(1)
	defer s.running.Done()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Info("Starting job")
	start := time.Now()
	err := e.job(ctx)
	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("Job completed")
	}
	return true, err
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	stopped := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
	Running bool
}

func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:    name,
			NextRun: ce.Next,
			LastRun: ce.Prev,
			Running: e.running.Load(),
		})
	}
	return infos
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
