package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/hausbot/internal/telemetry"
)

// Scheduler runs background jobs on cron schedules: the session sweep
// and any registered telemetry pollers. Job failures are logged, never
// fatal.
type Scheduler struct {
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(cronParser)),
	}
}

// Add registers a named job on the given cron schedule.
func (s *Scheduler) Add(name, schedule string, fn func()) error {
	_, err := s.cron.AddFunc(schedule, func() {
		slog.Debug("cron firing job", "name", name)
		fn()
	})
	if err != nil {
		return err
	}
	slog.Info("scheduled job", "name", name, "schedule", schedule)
	return nil
}

// AddPoller registers a telemetry poller whose readings go to the sink.
func (s *Scheduler) AddPoller(poller telemetry.Poller, sink telemetry.Sink) error {
	return s.Add(poller.Name(), poller.Schedule(), func() {
		ctx := context.Background()
		readings, err := poller.Poll(ctx)
		if err != nil {
			slog.Error("poll failed", "poller", poller.Name(), "error", err)
			return
		}
		if len(readings) == 0 {
			return
		}
		if err := sink.Store(ctx, readings); err != nil {
			slog.Error("store readings failed", "poller", poller.Name(), "error", err)
		}
	})
}

// Start begins the cron ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron ticker. Jobs already running finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
