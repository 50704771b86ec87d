package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"roomplane/internal/notify"
	"roomplane/internal/playlist"
	"roomplane/internal/scheduler"
	"roomplane/internal/store"

	"github.com/google/uuid"
)

// memRooms is an in-memory RoomStore with the same conditional transitions as the database.
type memRooms struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*store.Room
	// failReset makes ResetBuild fail for these rooms.
	failReset map[uuid.UUID]bool
	// failBuilt makes MarkBuilt fail for these rooms.
	failBuilt map[uuid.UUID]bool
}

func newMemRooms(rooms ...*store.Room) *memRooms {
	m := &memRooms{rooms: make(map[uuid.UUID]*store.Room), failReset: map[uuid.UUID]bool{}, failBuilt: map[uuid.UUID]bool{}}
	for _, r := range rooms {
		m.rooms[r.ID] = r
	}
	return m
}

func (m *memRooms) get(id uuid.UUID) store.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rooms[id]
}

func (m *memRooms) GetRoom(ctx context.Context, id uuid.UUID) (*store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRooms) list(keep func(*store.Room) bool) []store.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Room
	for _, r := range m.rooms {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnchorAt.Before(out[j].AnchorAt) })
	return out
}

func (m *memRooms) ListRecoverable(ctx context.Context, since time.Time) ([]store.Room, error) {
	return m.list(func(r *store.Room) bool {
		return r.Status != store.RoomStatusCompleted && r.AnchorAt.After(since)
	}), nil
}

func (m *memRooms) ListExpiredPrivate(ctx context.Context, cutoff time.Time) ([]store.Room, error) {
	return m.list(func(r *store.Room) bool {
		return r.IsPrivate && r.Status == store.RoomStatusLive && r.AnchorAt.Before(cutoff)
	}), nil
}

func (m *memRooms) ListRecent(ctx context.Context, limit int) ([]store.Room, error) {
	all := m.list(func(*store.Room) bool { return true })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memRooms) CountByStatus(ctx context.Context) ([]store.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[store.RoomStatus]int64{}
	for _, r := range m.rooms {
		counts[r.Status]++
	}
	var out []store.StatusCount
	for s, n := range counts {
		out = append(out, store.StatusCount{Status: s, Count: n})
	}
	return out, nil
}

func (m *memRooms) transition(id uuid.UUID, allowed []store.RoomStatus, apply func(*store.Room) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return false, nil
	}
	for _, s := range allowed {
		if r.Status == s {
			return apply(r), nil
		}
	}
	return false, nil
}

func (m *memRooms) MarkBuilding(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, []store.RoomStatus{store.RoomStatusScheduled, store.RoomStatusBuilding}, func(r *store.Room) bool {
		r.Status, r.PlaylistBuilt, r.ProgramRef = store.RoomStatusBuilding, false, nil
		return true
	})
}

func (m *memRooms) MarkBuilt(ctx context.Context, id uuid.UUID, ref string) (bool, error) {
	if m.failBuilt[id] {
		return false, errors.New("connection reset")
	}
	return m.transition(id, []store.RoomStatus{store.RoomStatusBuilding}, func(r *store.Room) bool {
		r.Status, r.PlaylistBuilt, r.ProgramRef = store.RoomStatusScheduled, true, &ref
		return true
	})
}

func (m *memRooms) ResetBuild(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.failReset[id] {
		return false, errors.New("connection reset")
	}
	return m.transition(id, []store.RoomStatus{store.RoomStatusBuilding}, func(r *store.Room) bool {
		r.Status, r.PlaylistBuilt, r.ProgramRef = store.RoomStatusScheduled, false, nil
		return true
	})
}

func (m *memRooms) MarkLive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return m.transition(id, []store.RoomStatus{store.RoomStatusScheduled}, func(r *store.Room) bool {
		if !r.PlaylistBuilt || r.ProgramRef == nil {
			return false
		}
		r.Status, r.StartedAt = store.RoomStatusLive, &at
		return true
	})
}

func (m *memRooms) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return m.transition(id, []store.RoomStatus{store.RoomStatusLive}, func(r *store.Room) bool {
		r.Status, r.EndedAt = store.RoomStatusCompleted, &at
		return true
	})
}

type fakeBuilder struct {
	err   error
	calls []playlist.Request
}

func (f *fakeBuilder) Build(ctx context.Context, roomID string, req playlist.Request) (*playlist.Program, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &playlist.Program{Path: "/hls/" + roomID + "/concat.txt", Segments: 10}, nil
}

type fakeStreams struct {
	mu       sync.Mutex
	running  map[string]string
	startErr error
	readyErr error
	starts   int
	stops    []string
	resets   []string
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{running: map[string]string{}}
}

func (f *fakeStreams) Start(ctx context.Context, roomID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running[roomID] = ref
	return nil
}

func (f *fakeStreams) WaitReady(ctx context.Context, roomID string) error { return f.readyErr }

func (f *fakeStreams) Stop(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, roomID)
	delete(f.running, roomID)
	return nil
}

func (f *fakeStreams) IsAlive(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.running[roomID]
	return ok
}

func (f *fakeStreams) ResetOutput(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, roomID)
	return nil
}

func (f *fakeStreams) StreamURL(roomID string) string {
	return "https://stream.example.com/hls/" + roomID + "/stream.m3u8"
}

func (f *fakeStreams) Live() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.running {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type fakeNotifier struct {
	leads []int
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, room *store.Room, lead int) (*notify.Summary, error) {
	f.leads = append(f.leads, lead)
	return &notify.Summary{}, f.err
}

type announcement struct {
	room    string
	event   string
	payload map[string]any
}

type fakeAnnouncer struct {
	mu  sync.Mutex
	got []announcement
}

func (f *fakeAnnouncer) Announce(ctx context.Context, roomID, event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, announcement{roomID, event, payload})
	return nil
}

func (f *fakeAnnouncer) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.got {
		out = append(out, a.event)
	}
	return out
}

type harness struct {
	orch      *Orchestrator
	rooms     *memRooms
	sched     *scheduler.Scheduler
	builder   *fakeBuilder
	streams   *fakeStreams
	notifier  *fakeNotifier
	announcer *fakeAnnouncer
	now       time.Time
}

var testNow = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func testTiming() Timing {
	return Timing{
		StartDelays:       map[int]time.Duration{20: 30 * time.Minute, 8: 60 * time.Minute},
		DefaultStartDelay: 30 * time.Minute,
		BuildLead:         90 * time.Minute,
		NotifyLeads:       []int{30, 20, 15, 10},
		CleanupAfter:      3 * time.Hour,
	}
}

// newHarness wires an orchestrator to fakes and a paused scheduler so jobs can be inspected.
func newHarness(t *testing.T, rooms ...*store.Room) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		rooms:     newMemRooms(rooms...),
		builder:   &fakeBuilder{},
		streams:   newFakeStreams(),
		notifier:  &fakeNotifier{},
		announcer: &fakeAnnouncer{},
		now:       testNow,
	}
	now := func() time.Time { return h.now }
	h.sched = scheduler.New(scheduler.Options{Logger: logger, Now: now})
	h.sched.Pause()
	t.Cleanup(func() { h.sched.Shutdown(context.Background()) })

	orch, err := New(Config{
		Timing:           testTiming(),
		RecoveryLookback: 4 * time.Hour,
		RestartLiveDelay: 10 * time.Second,
		UrgentBuildDelay: 5 * time.Second,
		PrivateRoomTTL:   6 * time.Hour,
		DefaultReciter:   "Alafasy_128kbps",
	}, Deps{
		Rooms:     h.rooms,
		Scheduler: h.sched,
		Builder:   h.builder,
		Streams:   h.streams,
		Notifier:  h.notifier,
		Announcer: h.announcer,
		Logger:    logger,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) pendingKeys() map[string]time.Time {
	out := map[string]time.Time{}
	for _, j := range h.sched.Pending() {
		out[j.Key] = j.RunAt
	}
	return out
}

func newRoom(status store.RoomStatus, anchor time.Time, rakats int) *store.Room {
	return &store.Room{
		ID:          uuid.New(),
		AnchorAt:    anchor,
		Night:       10,
		Rakats:      rakats,
		JuzPerNight: 1,
		JuzNumber:   10,
		Reciter:     "Alafasy_128kbps",
		Status:      status,
	}
}

func builtRoom(status store.RoomStatus, anchor time.Time, rakats int) *store.Room {
	r := newRoom(status, anchor, rakats)
	ref := "/hls/" + r.ID.String() + "/concat.txt"
	r.PlaylistBuilt, r.ProgramRef = true, &ref
	return r
}
