package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobFunc is one run of a periodic maintenance job.
type JobFunc func(ctx context.Context) error

// CronScheduler runs the broker's periodic maintenance jobs.
type CronScheduler struct {
	cron   *cron.Cron
	mu     sync.Mutex
	jobs   map[string]cron.EntryID
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCronScheduler creates a scheduler. Schedules accept an optional seconds field and
// descriptors such as "@every 1m".
func NewCronScheduler(logger *slog.Logger) *CronScheduler {
	c := cron.New(cron.WithSeconds())
	return &CronScheduler{
		cron:   c,
		jobs:   make(map[string]cron.EntryID),
		logger: logger.With("component", "cron-scheduler"),
		tracer: otel.Tracer("query-broker-scheduler"),
	}
}

// Start runs the scheduler until ctx is cancelled, then waits for running jobs.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// AddJob schedules fn under name, replacing any job already registered with that name.
func (s *CronScheduler) AddJob(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
	}

	jobWrapper := &cronJobWrapper{
		name:   name,
		fn:     fn,
		logger: s.logger.With("job_name", name),
		tracer: s.tracer,
	}

	entryID, err := s.cron.AddJob(schedule, jobWrapper)
	if err != nil {
		s.logger.Error("failed to add job to cron", "job_name", name, "error", err)
		return err
	}

	s.jobs[name] = entryID
	s.logger.Info("added job to scheduler", "job_name", name, "schedule", schedule)
	return nil
}

// RemoveJob removes a job from the scheduler.
func (s *CronScheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job from scheduler", "job_name", name)
	}
}

type cronJobWrapper struct {
	name   string
	fn     JobFunc
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library.
func (w *cronJobWrapper) Run() {
	// Start a new trace for this background job execution.
	ctx, span := w.tracer.Start(context.Background(), "scheduler.Run",
		trace.WithAttributes(attribute.String("job.name", w.name)))
	defer span.End()

	if err := w.fn(ctx); err != nil {
		w.logger.Error("scheduled job failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
	}
}
