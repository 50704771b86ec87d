package orchestrator

import (
	"context"
	"fmt"

	"roomplane/internal/scheduler"
	"roomplane/internal/store"
)

// Report is the aggregate view shown to administrators.
type Report struct {
	Enabled     bool
	Counts      []store.StatusCount
	Recent      []store.Room
	Pending     []scheduler.JobInfo
	LiveStreams []string
}

// Status gathers room counts, the most recent rooms, pending jobs and running streams.
func (o *Orchestrator) Status(ctx context.Context, recent int) (*Report, error) {
	counts, err := o.rooms.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count rooms: %w", err)
	}
	rooms, err := o.rooms.ListRecent(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return &Report{
		Enabled:     o.sched.Enabled(),
		Counts:      counts,
		Recent:      rooms,
		Pending:     o.sched.Pending(),
		LiveStreams: o.streams.Live(),
	}, nil
}
