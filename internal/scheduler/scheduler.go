// Package scheduler provides cron-based triggers for the bot's periodic jobs
// (daily reminders and the monthly winner announcement).
package scheduler

import (
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron  *cron.Cron
	names map[cron.EntryID]string
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	loc *time.Location
}

// WithLocation evaluates cron expressions in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewScheduler creates and starts a cron scheduler. Panicking jobs are
// recovered and logged.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}
	// Standard 5-field cron parser (min, hour, dom, month, dow)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	c.Start()
	return &Scheduler{cron: c, names: make(map[cron.EntryID]string)}
}

// AddJob schedules a named task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	id, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		slog.Info("Scheduler.AddJob: job started", "job", name)
		task()
		slog.Info("Scheduler.AddJob: job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return err
	}
	s.names[id] = name
	slog.Debug("Scheduler.AddJob: job scheduled", "job", name, "expr", expr)
	return nil
}

// Job describes a scheduled job.
type Job struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
}

// Jobs lists scheduled jobs ordered by next run.
func (s *Scheduler) Jobs() []Job {
	var out []Job
	for _, e := range s.cron.Entries() {
		out = append(out, Job{Name: s.names[e.ID], Next: e.Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
