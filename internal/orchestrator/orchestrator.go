// Package orchestrator drives rooms through their lifecycle: it derives phase jobs from a room's
// anchor time, runs each phase against the stores and the stream supervisor, and rebuilds the
// in-memory schedule from the database after a restart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roomplane/internal/notify"
	"roomplane/internal/observability"
	"roomplane/internal/playlist"
	"roomplane/internal/scheduler"
	"roomplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoProgram is returned when a stream is started for a room whose playlist was never built.
var ErrNoProgram = errors.New("room has no built playlist")

// Real-time events announced to a room's subscribers.
const (
	EventBuilding = "room_building"
	EventStarted  = "room_started"
	EventEnded    = "room_ended"
)

// Announcer pushes a real-time event to everyone watching a room.
type Announcer interface {
	Announce(ctx context.Context, roomID, event string, payload map[string]any) error
}

// Builder composes and writes a room's playlist.
type Builder interface {
	Build(ctx context.Context, roomID string, req playlist.Request) (*playlist.Program, error)
}

// Streamer runs the per-room transcoder.
type Streamer interface {
	Start(ctx context.Context, roomID, programRef string) error
	WaitReady(ctx context.Context, roomID string) error
	Stop(ctx context.Context, roomID string) error
	IsAlive(roomID string) bool
	ResetOutput(roomID string) error
	StreamURL(roomID string) string
	Live() []string
}

// Notifier delivers one lead-time wave of reminders.
type Notifier interface {
	Notify(ctx context.Context, room *store.Room, lead int) (*notify.Summary, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	Timing           Timing
	RecoveryLookback time.Duration
	RestartLiveDelay time.Duration
	UrgentBuildDelay time.Duration
	PrivateRoomTTL   time.Duration
	DefaultReciter   string
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Rooms       store.RoomStore
	Scheduler   *scheduler.Scheduler
	Builder     Builder
	Streams     Streamer
	Notifier    Notifier
	Announcer   Announcer
	Instruments *observability.Instruments
	Logger      *slog.Logger
	Now         func() time.Time
}

// Orchestrator owns the phase operations for every room.
type Orchestrator struct {
	cfg       Config
	rooms     store.RoomStore
	sched     *scheduler.Scheduler
	builder   Builder
	streams   Streamer
	notifier  Notifier
	announcer Announcer
	inst      *observability.Instruments
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Rooms == nil:
		return nil, fmt.Errorf("room store is required")
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("scheduler is required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("playlist builder is required")
	case deps.Streams == nil:
		return nil, fmt.Errorf("stream supervisor is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case deps.Announcer == nil:
		return nil, fmt.Errorf("announcer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		rooms:     deps.Rooms,
		sched:     deps.Scheduler,
		builder:   deps.Builder,
		streams:   deps.Streams,
		notifier:  deps.Notifier,
		announcer: deps.Announcer,
		inst:      deps.Instruments,
		logger:    deps.Logger,
		now:       deps.Now,
		tracer:    otel.Tracer("orchestrator"),
	}, nil
}

// ScheduleRoom registers the room's phase jobs, replacing any earlier registration.
func (o *Orchestrator) ScheduleRoom(room *store.Room) ([]PlannedJob, error) {
	plan := o.cfg.Timing.Plan(room, o.now())
	for _, pj := range plan {
		job := scheduler.Job{Key: pj.Key, RunAt: pj.RunAt, Action: o.action(pj.Phase, room.ID, pj.Lead)}
		if err := o.sched.Schedule(job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", pj.Key, err)
		}
	}
	o.logger.Info("room scheduled",
		"room_id", room.ID.String(),
		"stream_start", o.cfg.Timing.StreamStart(room),
		"jobs", len(plan),
	)
	return plan, nil
}

// ScheduleRoomByID loads a room and schedules it. Completed rooms are left alone.
func (o *Orchestrator) ScheduleRoomByID(ctx context.Context, id uuid.UUID) ([]PlannedJob, error) {
	room, err := o.rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Status == store.RoomStatusCompleted {
		o.logger.Info("room already completed, not scheduling", "room_id", id.String())
		return nil, nil
	}
	return o.ScheduleRoom(room)
}

// scheduleAfter registers a one-off phase job delay from now.
func (o *Orchestrator) scheduleAfter(phase Phase, id uuid.UUID, delay time.Duration) error {
	return o.sched.Schedule(scheduler.Job{
		Key:    JobKey(phase, id.String(), 0),
		RunAt:  o.now().Add(delay),
		Action: o.action(phase, id, 0),
	})
}

// action wraps a phase operation with a span and the job counters.
func (o *Orchestrator) action(phase Phase, id uuid.UUID, lead int) scheduler.Action {
	return func(ctx context.Context) error {
		return o.runPhase(ctx, phase, id, lead)
	}
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, id uuid.UUID, lead int) error {
	ctx, span := o.tracer.Start(ctx, "phase."+string(phase),
		trace.WithAttributes(
			attribute.String("room.id", id.String()),
			attribute.String("phase", string(phase)),
		),
	)
	defer span.End()
	if lead > 0 {
		span.SetAttributes(attribute.Int("notify.lead_minutes", lead))
	}

	o.inst.JobFired(ctx, string(phase))

	var err error
	switch phase {
	case PhaseBuild, PhaseUrgentBuild:
		err = o.BuildPlaylist(ctx, id)
	case PhaseNotify:
		err = o.Notify(ctx, id, lead)
	case PhaseStart:
		err = o.StartStream(ctx, id)
	case PhaseCleanup:
		err = o.Cleanup(ctx, id)
	case PhaseRestartLive:
		err = o.RestartLive(ctx, id)
	default:
		err = fmt.Errorf("unknown phase %q", phase)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.inst.JobFailed(ctx, string(phase))
	}
	return err
}

func (o *Orchestrator) announce(ctx context.Context, id uuid.UUID, event string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err := o.announcer.Announce(ctx, id.String(), event, payload); err != nil {
		o.logger.Warn("announce failed", "room_id", id.String(), "event", event, "error", err)
	}
}

// SetEnabled pauses or resumes all job firing.
func (o *Orchestrator) SetEnabled(enabled bool) {
	if enabled {
		o.sched.Resume()
	} else {
		o.sched.Pause()
	}
}

// Enabled reports whether jobs are firing.
func (o *Orchestrator) Enabled() bool {
	return o.sched.Enabled()
}

// Pending lists the registered jobs.
func (o *Orchestrator) Pending() []scheduler.JobInfo {
	return o.sched.Pending()
}
