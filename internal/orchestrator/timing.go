package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"roomplane/internal/config"
	"roomplane/internal/store"
)

// Phase tags a scheduled job.
type Phase string

const (
	PhaseBuild       Phase = "build"
	PhaseUrgentBuild Phase = "build_urgent"
	PhaseNotify      Phase = "notify"
	PhaseStart       Phase = "start"
	PhaseCleanup     Phase = "cleanup"
	PhaseRestartLive Phase = "restart_live"
)

// JobKey returns the idempotency key for a room phase. Notify keys carry the lead minutes.
func JobKey(phase Phase, roomID string, lead int) string {
	if phase == PhaseNotify {
		return fmt.Sprintf("%s_%s_%d", phase, roomID, lead)
	}
	return fmt.Sprintf("%s_%s", phase, roomID)
}

// PlannedJob is one derived phase job.
type PlannedJob struct {
	Key   string
	Phase Phase
	// Lead is the notify lead time in minutes; zero for other phases.
	Lead  int
	RunAt time.Time
}

// Timing holds the offsets that turn a room's anchor time into phase times.
type Timing struct {
	StartDelays       map[int]time.Duration
	DefaultStartDelay time.Duration
	BuildLead         time.Duration
	NotifyLeads       []int
	CleanupAfter      time.Duration
}

// TimingFromConfig copies the scheduler offsets out of the loaded configuration.
func TimingFromConfig(c config.SchedulerConfig) Timing {
	return Timing{
		StartDelays:       c.StartDelays,
		DefaultStartDelay: c.DefaultStartDelay,
		BuildLead:         c.BuildLead,
		NotifyLeads:       c.NotifyLeads,
		CleanupAfter:      c.CleanupAfter,
	}
}

// StartDelay returns how long after the anchor a room with the given rakat count goes live.
func (t Timing) StartDelay(rakats int) time.Duration {
	if d, ok := t.StartDelays[rakats]; ok {
		return d
	}
	return t.DefaultStartDelay
}

// StreamStart returns when the room's stream starts.
func (t Timing) StreamStart(room *store.Room) time.Time {
	return room.AnchorAt.Add(t.StartDelay(room.Rakats))
}

// BuildAt returns when the room's playlist is built.
func (t Timing) BuildAt(room *store.Room) time.Time {
	return t.StreamStart(room).Add(-t.BuildLead)
}

// Plan derives the phase jobs for a room as of now, in time order.
// Build, notify and start jobs whose time has passed are left out. Cleanup is always
// included so a room recovered late is still torn down.
func (t Timing) Plan(room *store.Room, now time.Time) []PlannedJob {
	id := room.ID.String()
	start := t.StreamStart(room)

	var jobs []PlannedJob
	add := func(phase Phase, lead int, at time.Time) {
		jobs = append(jobs, PlannedJob{Key: JobKey(phase, id, lead), Phase: phase, Lead: lead, RunAt: at})
	}

	if build := start.Add(-t.BuildLead); build.After(now) {
		add(PhaseBuild, 0, build)
	}
	for _, lead := range t.NotifyLeads {
		if at := start.Add(-time.Duration(lead) * time.Minute); at.After(now) {
			add(PhaseNotify, lead, at)
		}
	}
	if start.After(now) {
		add(PhaseStart, 0, start)
	}
	add(PhaseCleanup, 0, start.Add(t.CleanupAfter))

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].RunAt.Before(jobs[j].RunAt) })
	return jobs
}
