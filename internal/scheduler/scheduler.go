// Package scheduler runs named background refresh jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled task.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression or a descriptor such as @hourly.
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run; zero means one minute.
	Timeout time.Duration
}

// Scheduler evaluates every job in one location.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]entry
}

type entry struct {
	job Job
	id  cron.EntryID
}

// New creates a stopped scheduler. A nil location means UTC.
func New(loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		loc:    loc,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]entry),
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.run(s.ctx, job) })
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = entry{job: job, id: id}
	s.logger.Printf("scheduled %s (%s, %s)", job.Name, job.Spec, s.loc)
	return nil
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, e.job)
}

// Next reports when the named job fires next; zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	err := job.Run(runCtx)
	if err != nil {
		s.logger.Printf("job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
		return err
	}
	s.logger.Printf("job %s done in %s", job.Name, time.Since(start).Round(time.Millisecond))
	return nil
}

// Start begins evaluating schedules in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// NextRun computes the first activation of spec strictly after t in loc.
func NextRun(spec string, t time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.In(loc)), nil
}
