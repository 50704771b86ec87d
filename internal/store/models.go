// Package store contains the database layer for roomplane.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// RoomStatus represents the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusBuilding  RoomStatus = "building"
	RoomStatusLive      RoomStatus = "live"
	RoomStatusCompleted RoomStatus = "completed"
)

// Room is one scheduled instance of the program.
type Room struct {
	ID uuid.UUID

	// Configuration, fixed at creation
	AnchorAt    time.Time
	Night       int
	Rakats      int
	JuzPerNight float64
	JuzNumber   int
	JuzHalf     *int // 1 = first half, 2 = second half, nil = full juz
	Reciter     string
	IsPrivate   bool

	// Lifecycle
	Status           RoomStatus
	PlaylistBuilt    bool
	ProgramRef       *string // path of the playlist artifact, set iff PlaylistBuilt
	StartedAt        *time.Time
	EndedAt          *time.Time
	ParticipantCount int
}

// Subscriber is a user eligible for reminders, with their delivery preferences.
type Subscriber struct {
	ID                  uuid.UUID
	Name                string
	Email               string
	Phone               string
	NotifyWhatsApp      bool
	NotifyEmail         bool
	NotifyMinutesBefore int
}

// NotificationStatus is the outcome of a delivery attempt.
type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// NotificationRecord is an append-only delivery log entry.
type NotificationRecord struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	RoomID  uuid.UUID
	Channel string
	Status  NotificationStatus
	SentAt  time.Time
}

// SentKey identifies a (user, channel) pair that was already reached for a room.
type SentKey struct {
	UserID  uuid.UUID
	Channel string
}

// StatusCount is one row of the aggregate room status report.
type StatusCount struct {
	Status RoomStatus
	Count  int64
}
