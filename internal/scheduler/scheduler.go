// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "studiosync/internal/log"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression.
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run; zero means no bound.
	Timeout time.Duration
}

// Scheduler runs jobs in the business timezone. A job whose previous run is
// still going is skipped, and panics are recovered.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	jobs []string
}

// New returns a stopped scheduler evaluating specs in loc.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx: ctx,
	}
}

// Add registers job. Jobs with an empty spec are ignored.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(job.Spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name, job.Spec, err)
	}
	s.jobs = append(s.jobs, job.Name)
	appLog.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.jobs...)
}

func (s *Scheduler) run(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		appLog.Error("job failed", err, "job", job.Name, "elapsed", time.Since(started).String())
		return
	}
	appLog.Debug("job done", "job", job.Name, "elapsed", time.Since(started).String())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own logging to the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
