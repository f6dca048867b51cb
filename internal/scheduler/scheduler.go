package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned when triggering a job that was never registered
var ErrUnknownJob = errors.New("unknown job")

// Job represents a scheduled job
type Job interface {
	// Name returns the job name for logging
	Name() string
	// Run executes the job
	Run(ctx context.Context) error
	// Schedule returns the cron expression the job fires on
	Schedule() string
}

// Scheduler runs named cron jobs plus a keyed set of recurring triggers
// that can be replaced or removed at runtime.
type Scheduler struct {
	cron     *cron.Cron
	logger   *observability.Logger
	location *time.Location

	mu        sync.Mutex
	ctx       context.Context
	jobs      []Job
	recurring map[string]cron.EntryID
}

// New creates a scheduler evaluating specs in timezone
func New(logger *observability.Logger, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
	}
	cl := logger.CronLogger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{
		cron:      c,
		logger:    logger,
		location:  loc,
		ctx:       context.Background(),
		recurring: make(map[string]cron.EntryID),
	}, nil
}

// Register adds a named job
func (s *Scheduler) Register(job Job) error {
	_, err := s.cron.AddFunc(job.Schedule(), func() {
		s.execute(s.baseContext(), job.Name(), job.Run)
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	s.logger.Info(context.Background(), fmt.Sprintf("Registered scheduled job: %s (schedule: %s)", job.Name(), job.Schedule()))
	return nil
}

// Start runs the scheduler until ctx is cancelled, then waits for running jobs
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info(ctx, fmt.Sprintf("Starting scheduler with %d jobs", n))
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info(context.Background(), "Scheduler stopped")
	return ctx.Err()
}

// Trigger runs a registered job immediately, outside its schedule
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.execute(ctx, job.Name(), job.Run)
}

// ScheduleRecurring installs or replaces the trigger stored under key
func (s *Scheduler) ScheduleRecurring(key, spec string, run func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() {
		s.execute(s.baseContext(), key, run)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	if old, ok := s.recurring[key]; ok {
		s.cron.Remove(old)
	}
	s.recurring[key] = id
	return nil
}

// Unschedule removes the trigger stored under key, if any
func (s *Scheduler) Unschedule(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.recurring[key]
	if ok {
		s.cron.Remove(id)
		delete(s.recurring, key)
	}
	return ok
}

// Recurring lists the keys of installed recurring triggers
func (s *Scheduler) Recurring() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.recurring))
	for k := range s.recurring {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Next returns the next activation of the trigger stored under key
func (s *Scheduler) Next(key string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.recurring[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// execute runs a job and logs timing
func (s *Scheduler) execute(ctx context.Context, name string, run func(context.Context) error) error {
	jobCtx := observability.WithFields(ctx, observability.Field{Key: "scheduled_job", Value: name})
	start := time.Now()
	s.logger.Debug(jobCtx, fmt.Sprintf("Executing scheduled job: %s", name))

	err := run(jobCtx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error(jobCtx, fmt.Sprintf("Job %s failed after %v", name, duration), err)
		return err
	}
	s.logger.Debug(jobCtx, fmt.Sprintf("Job %s completed in %v", name, duration))
	return nil
}
