package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomplane/internal/quran"
	"roomplane/internal/store"
	"roomplane/internal/stream"

	"github.com/google/uuid"
)

func checkProgramInvariant(t *testing.T, r store.Room) {
	t.Helper()
	if r.PlaylistBuilt != (r.ProgramRef != nil) {
		t.Errorf("playlist_built=%v but program_ref=%v", r.PlaylistBuilt, r.ProgramRef)
	}
}

func TestBuildPlaylist_Success(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow.Add(time.Hour), 20)
	half := 2
	room.JuzHalf = &half
	room.Reciter = ""
	h := newHarness(t, room)

	if err := h.orch.BuildPlaylist(context.Background(), room.ID); err != nil {
		t.Fatalf("BuildPlaylist failed: %v", err)
	}

	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusScheduled || !got.PlaylistBuilt {
		t.Errorf("status=%s built=%v", got.Status, got.PlaylistBuilt)
	}
	if got.ProgramRef == nil || *got.ProgramRef != "/hls/"+room.ID.String()+"/concat.txt" {
		t.Errorf("program ref = %v", got.ProgramRef)
	}
	checkProgramInvariant(t, got)

	req := h.builder.calls[0]
	if req.Rakats != 20 || req.Juz != 10 || req.Half != quran.HalfSecond || req.Reciter != "Alafasy_128kbps" {
		t.Errorf("unexpected request: %+v", req)
	}
	if ev := h.announcer.events(); len(ev) != 1 || ev[0] != EventBuilding {
		t.Errorf("events = %v", ev)
	}
}

func TestBuildPlaylist_FailureResets(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow.Add(time.Hour), 8)
	h := newHarness(t, room)
	h.builder.err = errors.New("no audio files found")

	if err := h.orch.BuildPlaylist(context.Background(), room.ID); err == nil {
		t.Fatal("expected build error")
	}

	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusScheduled || got.PlaylistBuilt || got.ProgramRef != nil {
		t.Errorf("room not reset: status=%s built=%v ref=%v", got.Status, got.PlaylistBuilt, got.ProgramRef)
	}
	checkProgramInvariant(t, got)
}

func TestBuildPlaylist_RecordFailureResets(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow.Add(time.Hour), 20)
	h := newHarness(t, room)
	h.rooms.failBuilt[room.ID] = true

	if err := h.orch.BuildPlaylist(context.Background(), room.ID); err == nil {
		t.Fatal("expected error when the playlist cannot be recorded")
	}

	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusScheduled || got.PlaylistBuilt || got.ProgramRef != nil {
		t.Errorf("room not reset: status=%s built=%v ref=%v", got.Status, got.PlaylistBuilt, got.ProgramRef)
	}
	checkProgramInvariant(t, got)

	// The start job must surface the missing program instead of skipping quietly.
	err := h.orch.StartStream(context.Background(), room.ID)
	if !errors.Is(err, ErrNoProgram) {
		t.Errorf("expected ErrNoProgram from start, got %v", err)
	}
	if h.streams.starts != 0 {
		t.Error("transcoder must not be launched without a program")
	}

	// A later attempt succeeds once the store recovers.
	delete(h.rooms.failBuilt, room.ID)
	if err := h.orch.BuildPlaylist(context.Background(), room.ID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := h.rooms.get(room.ID); !got.PlaylistBuilt {
		t.Error("retry did not record the playlist")
	}
}

func TestBuildPlaylist_RetryFromBuilding(t *testing.T) {
	room := newRoom(store.RoomStatusBuilding, testNow.Add(time.Hour), 8)
	h := newHarness(t, room)

	if err := h.orch.BuildPlaylist(context.Background(), room.ID); err != nil {
		t.Fatalf("BuildPlaylist failed: %v", err)
	}
	if got := h.rooms.get(room.ID); !got.PlaylistBuilt {
		t.Error("expected rebuilt playlist")
	}
}

func TestBuildPlaylist_SkipsLiveAndCompleted(t *testing.T) {
	for _, status := range []store.RoomStatus{store.RoomStatusLive, store.RoomStatusCompleted} {
		room := builtRoom(status, testNow, 8)
		h := newHarness(t, room)

		if err := h.orch.BuildPlaylist(context.Background(), room.ID); err != nil {
			t.Errorf("%s: unexpected error %v", status, err)
		}
		if len(h.builder.calls) != 0 {
			t.Errorf("%s: builder should not run", status)
		}
		if got := h.rooms.get(room.ID); got.Status != status {
			t.Errorf("%s: status changed to %s", status, got.Status)
		}
	}
}

func TestBuildPlaylist_InvalidHalf(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow, 8)
	bad := 3
	room.JuzHalf = &bad
	h := newHarness(t, room)

	err := h.orch.BuildPlaylist(context.Background(), room.ID)
	if !errors.Is(err, quran.ErrInvalidHalf) {
		t.Fatalf("expected ErrInvalidHalf, got %v", err)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestBuildPlaylist_NotFound(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.BuildPlaylist(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStartStream_Success(t *testing.T) {
	room := builtRoom(store.RoomStatusScheduled, testNow, 8)
	h := newHarness(t, room)

	if err := h.orch.StartStream(context.Background(), room.ID); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusLive || got.StartedAt == nil || !got.StartedAt.Equal(testNow) {
		t.Errorf("status=%s started_at=%v", got.Status, got.StartedAt)
	}
	if !h.streams.IsAlive(room.ID.String()) {
		t.Error("expected running stream")
	}
	if h.streams.running[room.ID.String()] != *room.ProgramRef {
		t.Errorf("stream started with %q", h.streams.running[room.ID.String()])
	}

	if len(h.announcer.got) != 1 {
		t.Fatalf("announcements = %+v", h.announcer.got)
	}
	a := h.announcer.got[0]
	if a.event != EventStarted || a.payload["stream_url"] != h.streams.StreamURL(room.ID.String()) {
		t.Errorf("unexpected announcement: %+v", a)
	}
}

func TestStartStream_NoProgram(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow, 8)
	h := newHarness(t, room)

	err := h.orch.StartStream(context.Background(), room.ID)
	if !errors.Is(err, ErrNoProgram) {
		t.Fatalf("expected ErrNoProgram, got %v", err)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
	if h.streams.starts != 0 {
		t.Error("transcoder must not be launched without a program")
	}
}

func TestStartStream_NotReady(t *testing.T) {
	room := builtRoom(store.RoomStatusScheduled, testNow, 8)
	h := newHarness(t, room)
	h.streams.readyErr = stream.ErrNotReady

	err := h.orch.StartStream(context.Background(), room.ID)
	if !errors.Is(err, stream.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusScheduled {
		t.Errorf("status = %s, must not advance to live", got.Status)
	}
	if h.streams.IsAlive(room.ID.String()) {
		t.Error("unready stream should be stopped")
	}
	if len(h.announcer.got) != 0 {
		t.Error("nothing should be announced")
	}
}

func TestStartStream_LaunchFailure(t *testing.T) {
	room := builtRoom(store.RoomStatusScheduled, testNow, 8)
	h := newHarness(t, room)
	h.streams.startErr = stream.ErrLaunch

	if err := h.orch.StartStream(context.Background(), room.ID); !errors.Is(err, stream.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusScheduled {
		t.Errorf("status = %s", got.Status)
	}
}

func TestStartStream_AlreadyLiveIsNoop(t *testing.T) {
	room := builtRoom(store.RoomStatusLive, testNow, 8)
	h := newHarness(t, room)

	if err := h.orch.StartStream(context.Background(), room.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.streams.starts != 0 {
		t.Error("live room must not be relaunched by start")
	}
}

func TestCleanup_CompletesLiveRoom(t *testing.T) {
	room := builtRoom(store.RoomStatusLive, testNow.Add(-4*time.Hour), 8)
	h := newHarness(t, room)
	h.streams.running[room.ID.String()] = *room.ProgramRef

	if err := h.orch.Cleanup(context.Background(), room.ID); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusCompleted || got.EndedAt == nil {
		t.Errorf("status=%s ended_at=%v", got.Status, got.EndedAt)
	}
	if h.streams.IsAlive(room.ID.String()) {
		t.Error("stream still running")
	}
	if ev := h.announcer.events(); len(ev) != 1 || ev[0] != EventEnded {
		t.Errorf("events = %v", ev)
	}

	// Idempotent: a second cleanup changes nothing and announces nothing.
	if err := h.orch.Cleanup(context.Background(), room.ID); err != nil {
		t.Fatalf("second Cleanup failed: %v", err)
	}
	if len(h.announcer.got) != 1 {
		t.Errorf("second cleanup announced again: %v", h.announcer.events())
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusCompleted {
		t.Errorf("completed room changed to %s", got.Status)
	}
}

func TestCleanup_NonLiveRoomUnchanged(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow.Add(-4*time.Hour), 8)
	h := newHarness(t, room)

	if err := h.orch.Cleanup(context.Background(), room.ID); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusScheduled {
		t.Errorf("status = %s, scheduled has no edge to completed", got.Status)
	}
	if len(h.streams.stops) != 1 {
		t.Error("cleanup should still stop any stream")
	}
}

func TestCleanup_MissingRoom(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.Cleanup(context.Background(), uuid.New()); err != nil {
		t.Errorf("cleanup of a deleted room should succeed, got %v", err)
	}
}

func TestRestartLive(t *testing.T) {
	room := builtRoom(store.RoomStatusLive, testNow.Add(-time.Hour), 20)
	h := newHarness(t, room)

	if err := h.orch.RestartLive(context.Background(), room.ID); err != nil {
		t.Fatalf("RestartLive failed: %v", err)
	}
	id := room.ID.String()
	if len(h.streams.resets) != 1 || h.streams.resets[0] != id {
		t.Errorf("output not reset: %v", h.streams.resets)
	}
	if !h.streams.IsAlive(id) {
		t.Error("stream not relaunched")
	}
	if len(h.announcer.got) != 1 || h.announcer.got[0].payload["stream_url"] != h.streams.StreamURL(id) {
		t.Errorf("unexpected announcements: %+v", h.announcer.got)
	}
	if got := h.rooms.get(room.ID); got.Status != store.RoomStatusLive {
		t.Errorf("status = %s", got.Status)
	}
}

func TestRestartLive_SkipsRunningOrNotLive(t *testing.T) {
	live := builtRoom(store.RoomStatusLive, testNow, 20)
	done := builtRoom(store.RoomStatusCompleted, testNow, 20)
	h := newHarness(t, live, done)
	h.streams.running[live.ID.String()] = "x"

	if err := h.orch.RestartLive(context.Background(), live.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.RestartLive(context.Background(), done.ID); err != nil {
		t.Fatal(err)
	}
	if h.streams.starts != 0 {
		t.Errorf("expected no launches, got %d", h.streams.starts)
	}
}

func TestLaunch(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow, 8)
	room.IsPrivate = true
	h := newHarness(t, room)

	if err := h.orch.Launch(context.Background(), room.ID); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	got := h.rooms.get(room.ID)
	if got.Status != store.RoomStatusLive || !got.PlaylistBuilt {
		t.Errorf("status=%s built=%v", got.Status, got.PlaylistBuilt)
	}
	if ev := h.announcer.events(); len(ev) != 2 || ev[0] != EventBuilding || ev[1] != EventStarted {
		t.Errorf("events = %v", ev)
	}
}

func TestLaunch_BuildFailureStops(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow, 8)
	h := newHarness(t, room)
	h.builder.err = errors.New("disk full")

	if err := h.orch.Launch(context.Background(), room.ID); err == nil {
		t.Fatal("expected error")
	}
	if h.streams.starts != 0 {
		t.Error("stream must not start after failed build")
	}
}

func TestNotify(t *testing.T) {
	active := newRoom(store.RoomStatusScheduled, testNow, 8)
	done := newRoom(store.RoomStatusCompleted, testNow, 8)
	h := newHarness(t, active, done)

	if err := h.orch.Notify(context.Background(), active.ID, 20); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Notify(context.Background(), done.ID, 10); err != nil {
		t.Fatal(err)
	}
	if len(h.notifier.leads) != 1 || h.notifier.leads[0] != 20 {
		t.Errorf("notifier calls = %v", h.notifier.leads)
	}

	h.notifier.err = errors.New("db down")
	if err := h.orch.Notify(context.Background(), active.ID, 15); err == nil {
		t.Error("expected notifier error to propagate")
	}
}

func TestExpirePrivateRooms(t *testing.T) {
	old := builtRoom(store.RoomStatusLive, testNow.Add(-7*time.Hour), 8)
	old.IsPrivate = true
	fresh := builtRoom(store.RoomStatusLive, testNow.Add(-time.Hour), 8)
	fresh.IsPrivate = true
	public := builtRoom(store.RoomStatusLive, testNow.Add(-7*time.Hour), 8)
	h := newHarness(t, old, fresh, public)

	if err := h.orch.ExpirePrivateRooms(context.Background()); err != nil {
		t.Fatalf("ExpirePrivateRooms failed: %v", err)
	}
	if got := h.rooms.get(old.ID); got.Status != store.RoomStatusCompleted {
		t.Errorf("old private room status = %s", got.Status)
	}
	if got := h.rooms.get(fresh.ID); got.Status != store.RoomStatusLive {
		t.Errorf("fresh private room status = %s", got.Status)
	}
	if got := h.rooms.get(public.ID); got.Status != store.RoomStatusLive {
		t.Errorf("public room status = %s", got.Status)
	}
}

func TestScheduleRoomByID(t *testing.T) {
	room := newRoom(store.RoomStatusScheduled, testNow.Add(3*time.Hour), 8)
	done := newRoom(store.RoomStatusCompleted, testNow.Add(3*time.Hour), 8)
	h := newHarness(t, room, done)

	plan, err := h.orch.ScheduleRoomByID(context.Background(), room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 7 || h.sched.Len() != 7 {
		t.Errorf("planned %d, registered %d, want 7", len(plan), h.sched.Len())
	}

	// Scheduling twice replaces rather than duplicates.
	if _, err := h.orch.ScheduleRoomByID(context.Background(), room.ID); err != nil {
		t.Fatal(err)
	}
	if h.sched.Len() != 7 {
		t.Errorf("re-scheduling duplicated jobs: %d", h.sched.Len())
	}

	plan, err = h.orch.ScheduleRoomByID(context.Background(), done.ID)
	if err != nil || plan != nil {
		t.Errorf("completed room: plan=%v err=%v", plan, err)
	}
}

func TestRunPhase_UnknownPhase(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.runPhase(context.Background(), Phase("bogus"), uuid.New(), 0); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func TestStatus(t *testing.T) {
	live := builtRoom(store.RoomStatusLive, testNow, 8)
	sched := newRoom(store.RoomStatusScheduled, testNow.Add(2*time.Hour), 20)
	h := newHarness(t, live, sched)
	h.streams.running[live.ID.String()] = "x"
	h.orch.ScheduleRoom(sched)

	rep, err := h.orch.Status(context.Background(), 50)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if rep.Enabled {
		t.Error("harness scheduler is paused")
	}
	if len(rep.Recent) != 2 || len(rep.Counts) != 2 {
		t.Errorf("recent=%d counts=%d", len(rep.Recent), len(rep.Counts))
	}
	if len(rep.LiveStreams) != 1 || rep.LiveStreams[0] != live.ID.String() {
		t.Errorf("live streams = %v", rep.LiveStreams)
	}
	if len(rep.Pending) == 0 {
		t.Error("expected pending jobs")
	}

	h.orch.SetEnabled(true)
	if !h.orch.Enabled() {
		t.Error("SetEnabled(true) did not resume")
	}
	h.orch.SetEnabled(false)
}
