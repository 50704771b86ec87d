package orchestrator

import (
	"context"
	"fmt"

	"roomplane/internal/scheduler"
	"roomplane/internal/store"
)

// RecoveryReport summarizes one recovery pass.
type RecoveryReport struct {
	Rooms        int
	ResetBuilds  int
	RestartLive  int
	Rescheduled  int
	UrgentBuilds int
	Failed       int
}

// Recover rebuilds the job registry from the database after a restart.
//
// Rooms anchored within the look-back window and still scheduled, building or live are
// reconciled: interrupted builds are reset, live rooms get a stream restart, and everything
// else is rescheduled, with an urgent build when the build time has passed but the stream
// has not started yet. A failure on one room does not stop the others.
func (o *Orchestrator) Recover(ctx context.Context) (*RecoveryReport, error) {
	now := o.now()
	rooms, err := o.rooms.ListRecoverable(ctx, now.Add(-o.cfg.RecoveryLookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list recoverable rooms: %w", err)
	}

	rep := &RecoveryReport{Rooms: len(rooms)}
	for i := range rooms {
		if err := o.recoverRoom(ctx, &rooms[i], rep); err != nil {
			rep.Failed++
			o.logger.Error("room recovery failed", "room_id", rooms[i].ID.String(), "error", err)
		}
	}

	o.logger.Info("recovery complete",
		"rooms", rep.Rooms,
		"reset_builds", rep.ResetBuilds,
		"restart_live", rep.RestartLive,
		"rescheduled", rep.Rescheduled,
		"urgent_builds", rep.UrgentBuilds,
		"failed", rep.Failed,
	)
	return rep, nil
}

func (o *Orchestrator) recoverRoom(ctx context.Context, room *store.Room, rep *RecoveryReport) error {
	id := room.ID

	if room.Status == store.RoomStatusBuilding {
		if _, err := o.rooms.ResetBuild(ctx, id); err != nil {
			return fmt.Errorf("failed to reset interrupted build: %w", err)
		}
		room.Status = store.RoomStatusScheduled
		room.PlaylistBuilt = false
		room.ProgramRef = nil
		rep.ResetBuilds++
		o.logger.Info("reset interrupted build", "room_id", id.String())
	}

	if room.Status == store.RoomStatusLive {
		if err := o.scheduleAfter(PhaseRestartLive, id, o.cfg.RestartLiveDelay); err != nil {
			return err
		}
		// The cleanup job died with the previous process; without it the room stays live.
		cleanupAt := o.cfg.Timing.StreamStart(room).Add(o.cfg.Timing.CleanupAfter)
		err := o.sched.Schedule(scheduler.Job{
			Key:    JobKey(PhaseCleanup, id.String(), 0),
			RunAt:  cleanupAt,
			Action: o.action(PhaseCleanup, id, 0),
		})
		if err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		rep.RestartLive++
		o.logger.Info("stream restart scheduled", "room_id", id.String())
		return nil
	}

	if _, err := o.ScheduleRoom(room); err != nil {
		return err
	}
	rep.Rescheduled++

	now := o.now()
	start := o.cfg.Timing.StreamStart(room)
	build := o.cfg.Timing.BuildAt(room)
	if !room.PlaylistBuilt && !build.After(now) && start.After(now) {
		if err := o.scheduleAfter(PhaseUrgentBuild, id, o.cfg.UrgentBuildDelay); err != nil {
			return err
		}
		rep.UrgentBuilds++
		o.logger.Info("urgent build scheduled", "room_id", id.String())
	}
	return nil
}
