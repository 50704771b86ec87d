package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome label values shared by the counters below.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Instruments groups the counters recorded by the orchestrator and its collaborators.
type Instruments struct {
	jobsFired     metric.Int64Counter
	jobsFailed    metric.Int64Counter
	builds        metric.Int64Counter
	streamStarts  metric.Int64Counter
	notifications metric.Int64Counter
}

// NewInstruments registers the roomplane counters on the given meter.
// A nil meter uses the global provider, which is a no-op until InitMetrics runs.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter("roomplane")
	}

	var (
		ins Instruments
		err error
	)
	if ins.jobsFired, err = meter.Int64Counter("jobs.fired",
		metric.WithDescription("Scheduled phase jobs fired")); err != nil {
		return nil, fmt.Errorf("failed to create jobs.fired counter: %w", err)
	}
	if ins.jobsFailed, err = meter.Int64Counter("jobs.failed",
		metric.WithDescription("Scheduled phase jobs that returned an error or panicked")); err != nil {
		return nil, fmt.Errorf("failed to create jobs.failed counter: %w", err)
	}
	if ins.builds, err = meter.Int64Counter("playlist.builds",
		metric.WithDescription("Playlist build attempts by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create playlist.builds counter: %w", err)
	}
	if ins.streamStarts, err = meter.Int64Counter("stream.starts",
		metric.WithDescription("Stream start attempts by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create stream.starts counter: %w", err)
	}
	if ins.notifications, err = meter.Int64Counter("notifications",
		metric.WithDescription("Notification deliveries by channel and outcome")); err != nil {
		return nil, fmt.Errorf("failed to create notifications counter: %w", err)
	}
	return &ins, nil
}

// JobFired counts a fired job for the phase.
func (i *Instruments) JobFired(ctx context.Context, phase string) {
	if i == nil {
		return
	}
	i.jobsFired.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// JobFailed counts a job whose action failed.
func (i *Instruments) JobFailed(ctx context.Context, phase string) {
	if i == nil {
		return
	}
	i.jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// PlaylistBuild counts a build attempt.
func (i *Instruments) PlaylistBuild(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// StreamStart counts a stream start attempt.
func (i *Instruments) StreamStart(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.streamStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Notification counts a delivery attempt on a channel.
func (i *Instruments) Notification(ctx context.Context, channel, outcome string) {
	if i == nil {
		return
	}
	i.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}
