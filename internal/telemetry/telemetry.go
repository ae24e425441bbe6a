// Package telemetry defines the collaborator interfaces for periodic
// data collection. Concrete pollers and sinks live outside this repo;
// the scheduler runs whatever is registered against these interfaces.
package telemetry

import (
	"context"
	"time"
)

// Reading is a single collected value.
type Reading struct {
	Source string
	Name   string
	Value  float64
	At     time.Time
}

// Poller fetches readings from some external source on a cron schedule.
type Poller interface {
	// Name identifies the poller in logs.
	Name() string
	// Schedule is a cron expression understood by the scheduler.
	Schedule() string
	// Poll fetches the current readings.
	Poll(ctx context.Context) ([]Reading, error)
}

// Sink consumes readings. Implementations must be safe for concurrent use.
type Sink interface {
	Store(ctx context.Context, readings []Reading) error
}
