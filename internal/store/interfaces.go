package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoomStore reads rooms and moves them along the lifecycle.
// Every transition is conditional on the current status, so an illegal edge is never written.
// Transition methods return (false, nil) when the room was not in a state that allows the edge.
type RoomStore interface {
	// GetRoom returns a room by its ID, or ErrNotFound.
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)

	// ListRecoverable returns rooms in scheduled, building or live whose anchor is after since.
	ListRecoverable(ctx context.Context, since time.Time) ([]Room, error)

	// ListExpiredPrivate returns live private rooms anchored before cutoff.
	ListExpiredPrivate(ctx context.Context, cutoff time.Time) ([]Room, error)

	// ListRecent returns the most recently anchored rooms, newest first.
	ListRecent(ctx context.Context, limit int) ([]Room, error)

	// CountByStatus returns the number of rooms in each status.
	CountByStatus(ctx context.Context) ([]StatusCount, error)

	// MarkBuilding moves scheduled|building -> building and clears any previous program.
	MarkBuilding(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkBuilt moves building -> scheduled with the program reference set.
	MarkBuilt(ctx context.Context, id uuid.UUID, programRef string) (bool, error)

	// ResetBuild moves building -> scheduled with the program cleared.
	ResetBuild(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkLive moves a built scheduled room -> live and stamps started_at.
	MarkLive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// MarkCompleted moves live -> completed and stamps ended_at.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// SubscriberStore answers "who wants a reminder for this room at this lead time".
type SubscriberStore interface {
	// EligibleSubscribers returns active users whose schedule and preferences match the room
	// and whose chosen lead time equals leadMinutes.
	EligibleSubscribers(ctx context.Context, room *Room, leadMinutes int) ([]Subscriber, error)
}

// NotificationStore is the append-only delivery log.
type NotificationStore interface {
	// SentKeys returns every (user, channel) with a sent record for the room.
	SentKeys(ctx context.Context, roomID uuid.UUID) (map[SentKey]bool, error)

	// AppendNotification records a delivery attempt.
	AppendNotification(ctx context.Context, rec *NotificationRecord) error
}
