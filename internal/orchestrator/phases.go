package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"roomplane/internal/logger"
	"roomplane/internal/observability"
	"roomplane/internal/playlist"
	"roomplane/internal/quran"
	"roomplane/internal/store"

	"github.com/google/uuid"
)

func (o *Orchestrator) request(room *store.Room) (playlist.Request, error) {
	half, err := quran.HalfFromInt(room.JuzHalf)
	if err != nil {
		return playlist.Request{}, err
	}
	reciter := room.Reciter
	if reciter == "" {
		reciter = o.cfg.DefaultReciter
	}
	return playlist.Request{Rakats: room.Rakats, Juz: room.JuzNumber, Half: half, Reciter: reciter}, nil
}

// BuildPlaylist composes the room's playlist and records it.
// Only scheduled or building rooms are built. A failed build puts the room back to scheduled
// with no program, ready for another attempt.
func (o *Orchestrator) BuildPlaylist(ctx context.Context, id uuid.UUID) error {
	log := logger.WithRoom(o.logger, id.String())

	room, err := o.rooms.GetRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", id, err)
	}
	if room.Status != store.RoomStatusScheduled && room.Status != store.RoomStatusBuilding {
		log.Info("build skipped", "status", room.Status)
		return nil
	}

	ok, err := o.rooms.MarkBuilding(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to mark room %s building: %w", id, err)
	}
	if !ok {
		log.Info("build skipped, room changed state")
		return nil
	}
	o.announce(ctx, id, EventBuilding, nil)

	var prog *playlist.Program
	req, err := o.request(room)
	if err == nil {
		prog, err = o.builder.Build(ctx, id.String(), req)
	}
	if err != nil {
		o.failBuild(ctx, id)
		return fmt.Errorf("playlist build failed for room %s: %w", id, err)
	}

	ok, err = o.rooms.MarkBuilt(ctx, id, prog.Path)
	if err != nil {
		o.failBuild(ctx, id)
		return fmt.Errorf("failed to record playlist for room %s: %w", id, err)
	}
	if !ok {
		o.failBuild(ctx, id)
		return fmt.Errorf("room %s left building before its playlist was recorded", id)
	}

	o.inst.PlaylistBuild(ctx, observability.OutcomeOK)
	log.Info("playlist built", "path", prog.Path, "segments", prog.Segments, "missing", prog.Missing)
	return nil
}

// failBuild puts a room that is still building back to scheduled with no program.
func (o *Orchestrator) failBuild(ctx context.Context, id uuid.UUID) {
	o.inst.PlaylistBuild(ctx, observability.OutcomeFailed)
	// The job context may already be cancelled on shutdown.
	if _, err := o.rooms.ResetBuild(context.WithoutCancel(ctx), id); err != nil {
		logger.WithRoom(o.logger, id.String()).Error("failed to reset room after build failure", "error", err)
	}
}

// Notify sends the lead-minute reminder wave for a room.
func (o *Orchestrator) Notify(ctx context.Context, id uuid.UUID, lead int) error {
	room, err := o.rooms.GetRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", id, err)
	}
	if room.Status == store.RoomStatusCompleted {
		logger.WithRoom(o.logger, id.String()).Info("notify skipped, room completed", "lead_minutes", lead)
		return nil
	}
	if _, err := o.notifier.Notify(ctx, room, lead); err != nil {
		return fmt.Errorf("notify %d min failed for room %s: %w", lead, id, err)
	}
	return nil
}

// StartStream launches the room's stream and marks it live once the manifest is ready.
// The status re-check makes a late or repeated start harmless.
func (o *Orchestrator) StartStream(ctx context.Context, id uuid.UUID) error {
	log := logger.WithRoom(o.logger, id.String())

	room, err := o.rooms.GetRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", id, err)
	}
	if room.Status != store.RoomStatusScheduled {
		log.Info("start skipped", "status", room.Status)
		return nil
	}
	if !room.PlaylistBuilt || room.ProgramRef == nil {
		o.inst.StreamStart(ctx, observability.OutcomeFailed)
		return fmt.Errorf("%w: room %s", ErrNoProgram, id)
	}

	if err := o.launchStream(ctx, id, *room.ProgramRef); err != nil {
		o.inst.StreamStart(ctx, observability.OutcomeFailed)
		return err
	}

	ok, err := o.rooms.MarkLive(ctx, id, o.now().UTC())
	if err == nil && !ok {
		err = fmt.Errorf("room %s is no longer startable", id)
	}
	if err != nil {
		o.inst.StreamStart(ctx, observability.OutcomeFailed)
		if serr := o.streams.Stop(context.WithoutCancel(ctx), id.String()); serr != nil {
			log.Error("failed to stop stream after failed transition", "error", serr)
		}
		return fmt.Errorf("failed to mark room %s live: %w", id, err)
	}

	o.inst.StreamStart(ctx, observability.OutcomeOK)
	url := o.streams.StreamURL(id.String())
	o.announce(ctx, id, EventStarted, map[string]any{"stream_url": url})
	log.Info("stream live", "stream_url", url)
	return nil
}

// launchStream starts the transcoder and waits for its manifest. A stream that never becomes
// ready is stopped.
func (o *Orchestrator) launchStream(ctx context.Context, id uuid.UUID, programRef string) error {
	key := id.String()
	if err := o.streams.Start(ctx, key, programRef); err != nil {
		return fmt.Errorf("failed to start stream for room %s: %w", id, err)
	}
	if err := o.streams.WaitReady(ctx, key); err != nil {
		if serr := o.streams.Stop(context.WithoutCancel(ctx), key); serr != nil {
			logger.WithRoom(o.logger, key).Error("failed to stop unready stream", "error", serr)
		}
		return fmt.Errorf("stream for room %s did not become ready: %w", id, err)
	}
	return nil
}

// Cleanup stops the room's stream and completes it. Only a live room is completed;
// the stream stop is attempted whatever the status.
func (o *Orchestrator) Cleanup(ctx context.Context, id uuid.UUID) error {
	log := logger.WithRoom(o.logger, id.String())

	if err := o.streams.Stop(ctx, id.String()); err != nil {
		log.Warn("stream stop failed during cleanup", "error", err)
	}

	room, err := o.rooms.GetRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("cleanup skipped, room gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", id, err)
	}
	if room.Status != store.RoomStatusLive {
		log.Info("cleanup left status unchanged", "status", room.Status)
		return nil
	}

	ok, err := o.rooms.MarkCompleted(ctx, id, o.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to complete room %s: %w", id, err)
	}
	if !ok {
		return nil
	}
	o.announce(ctx, id, EventEnded, nil)
	log.Info("room completed")
	return nil
}

// RestartLive relaunches the stream of a room that was live when the previous process died.
// Old segments are removed so the new manifest starts clean.
func (o *Orchestrator) RestartLive(ctx context.Context, id uuid.UUID) error {
	log := logger.WithRoom(o.logger, id.String())

	room, err := o.rooms.GetRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", id, err)
	}
	if room.Status != store.RoomStatusLive {
		log.Info("restart skipped", "status", room.Status)
		return nil
	}
	if room.ProgramRef == nil {
		return fmt.Errorf("%w: live room %s", ErrNoProgram, id)
	}
	if o.streams.IsAlive(id.String()) {
		log.Info("restart skipped, stream running")
		return nil
	}

	if err := o.streams.ResetOutput(id.String()); err != nil {
		return fmt.Errorf("failed to clear old output for room %s: %w", id, err)
	}
	if err := o.launchStream(ctx, id, *room.ProgramRef); err != nil {
		o.inst.StreamStart(ctx, observability.OutcomeFailed)
		return err
	}

	o.inst.StreamStart(ctx, observability.OutcomeOK)
	url := o.streams.StreamURL(id.String())
	o.announce(ctx, id, EventStarted, map[string]any{"stream_url": url})
	log.Info("stream restarted", "stream_url", url)
	return nil
}

// Launch builds and starts a room right away. Used for ad-hoc private rooms.
func (o *Orchestrator) Launch(ctx context.Context, id uuid.UUID) error {
	if err := o.BuildPlaylist(ctx, id); err != nil {
		return err
	}
	return o.StartStream(ctx, id)
}

// ExpirePrivateRooms cleans up private rooms that have been live longer than the configured TTL.
func (o *Orchestrator) ExpirePrivateRooms(ctx context.Context) error {
	cutoff := o.now().Add(-o.cfg.PrivateRoomTTL)
	rooms, err := o.rooms.ListExpiredPrivate(ctx, cutoff)
	if err != nil {
		return err
	}

	var errs []error
	for i := range rooms {
		id := rooms[i].ID
		o.logger.Info("expiring private room", "room_id", id.String(), "anchor", rooms[i].AnchorAt)
		if err := o.Cleanup(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
