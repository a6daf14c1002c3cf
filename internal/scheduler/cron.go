package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is a named cron job.
type JobFunc func(ctx context.Context) error

// Cron runs jobs on cron schedules. Overlapping runs of the same job are skipped.
type Cron struct {
	cron   *cron.Cron
	loc    *time.Location
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCron builds a cron runner using parser and evaluating schedules in loc.
func NewCron(parser cron.Parser, loc *time.Location, logger zerolog.Logger) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	l := logger.With().Str("component", "cron").Logger()
	adapter := cronLogger{logger: l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		loc:    loc,
		logger: l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name.
func (c *Cron) Add(name, spec string, job JobFunc) error {
	_, err := c.cron.AddFunc(spec, func() {
		started := time.Now()
		c.logger.Info().Str("job", name).Msg("cron job started")
		if err := job(c.ctx); err != nil {
			c.logger.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(started)).Msg("cron job failed")
			return
		}
		c.logger.Info().Str("job", name).Dur("elapsed", time.Since(started)).Msg("cron job finished")
	})
	if err != nil {
		return fmt.Errorf("register %s job: %w", name, err)
	}
	return nil
}

// Next reports the next activation of any job, zero when none is registered.
// Entries are only scheduled once Run starts, so earlier calls ask the schedules.
func (c *Cron) Next() time.Time {
	var next time.Time
	now := time.Now().In(c.loc)
	for _, e := range c.cron.Entries() {
		at := e.Next
		if at.IsZero() {
			at = e.Schedule.Next(now)
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}

// Run starts the jobs and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (c *Cron) Run(ctx context.Context) error {
	c.cron.Start()
	c.logger.Info().Int("jobs", len(c.cron.Entries())).Msg("cron started")

	<-ctx.Done()
	c.cancel()
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("cron stopped")
	return ctx.Err()
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
