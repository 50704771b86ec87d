// Package api contains shared JSON request/response structs.
// This package is shared between roomctl, the admin API and the message brokers.
package api

import "time"

// RoomCreatedMessage is the body of a room.created broker message.
type RoomCreatedMessage struct {
	RoomID string `json:"room_id"`
}

// RoomEvent is the envelope published to a room's event channel.
type RoomEvent struct {
	Event   string         `json:"event"`
	RoomID  string         `json:"room_id"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// SchedulerStateResponse reports whether phase jobs are firing.
type SchedulerStateResponse struct {
	Enabled bool         `json:"enabled"`
	Pending int          `json:"pending"`
	Jobs    []PendingJob `json:"jobs,omitempty"`
}

// PendingJob is one registered scheduler job.
type PendingJob struct {
	Key      string    `json:"key"`
	RunAt    time.Time `json:"run_at"`
	Interval string    `json:"interval,omitempty"`
}

// RoomSummary is one row of the room status listing.
type RoomSummary struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	AnchorAt      time.Time  `json:"isha_bucket_utc"`
	Night         int        `json:"ramadan_night"`
	Rakats        int        `json:"rakats"`
	JuzNumber     int        `json:"juz_number"`
	IsPrivate     bool       `json:"is_private"`
	PlaylistBuilt bool       `json:"playlist_built"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// RoomsStatusResponse is the aggregate view returned by GET /admin/rooms/status.
type RoomsStatusResponse struct {
	Enabled     bool             `json:"scheduler_enabled"`
	Counts      map[string]int64 `json:"counts"`
	Rooms       []RoomSummary    `json:"rooms"`
	PendingJobs int              `json:"pending_jobs"`
	LiveStreams []string         `json:"live_streams"`
}

// ScheduleResponse lists the jobs registered for a room.
type ScheduleResponse struct {
	RoomID string       `json:"room_id"`
	Jobs   []PendingJob `json:"jobs"`
}

// TriggerResponse acknowledges a manual phase trigger.
type TriggerResponse struct {
	RoomID string `json:"room_id"`
	Phase  string `json:"phase"`
	Status string `json:"status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
