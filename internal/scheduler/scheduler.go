// Package scheduler runs the retention job that prunes past office hours on
// a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"officehours/internal/engine"
	appLog "officehours/internal/log"
)

// Pruner is the engine operation the retention job calls.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (engine.Result, error)
}

type Scheduler struct {
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
	now       func() time.Time

	ctx context.Context
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New parses the cron schedule and registers the prune job. Cron fields are evaluated
// in loc.
func New(spec string, loc *time.Location, retention time.Duration, pruner Pruner, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(spec, s.runJob); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled and any running
// job has returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("retention scheduler started", "retention", s.retention.String())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("retention scheduler stopped")
}

// RunOnce prunes everything that ended before now minus the retention.
func (s *Scheduler) RunOnce(ctx context.Context) (engine.Result, error) {
	return s.pruner.Prune(ctx, s.now().Add(-s.retention))
}

func (s *Scheduler) runJob() {
	res, err := s.RunOnce(s.ctx)
	if err != nil {
		appLog.Error("scheduled prune failed", err)
		return
	}
	appLog.Debug("scheduled prune finished", "removed", len(res.Occurrences))
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
