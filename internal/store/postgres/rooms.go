package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"roomplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const roomColumns = `id, isha_bucket_utc, ramadan_night, rakats, juz_per_night, juz_number, juz_half,
	reciter, is_private, status, playlist_built, stream_path, started_at, ended_at, participant_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*store.Room, error) {
	var (
		r       store.Room
		juzHalf sql.NullInt64
		ref     sql.NullString
		started sql.NullTime
		ended   sql.NullTime
	)
	if err := row.Scan(
		&r.ID, &r.AnchorAt, &r.Night, &r.Rakats, &r.JuzPerNight, &r.JuzNumber, &juzHalf,
		&r.Reciter, &r.IsPrivate, &r.Status, &r.PlaylistBuilt, &ref, &started, &ended, &r.ParticipantCount,
	); err != nil {
		return nil, err
	}
	if juzHalf.Valid {
		h := int(juzHalf.Int64)
		r.JuzHalf = &h
	}
	if ref.Valid {
		r.ProgramRef = &ref.String
	}
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if ended.Valid {
		r.EndedAt = &ended.Time
	}
	return &r, nil
}

// GetRoom returns a room by its ID.
func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM room_slots WHERE id = $1`

	room, err := scanRoom(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room %s: %w", id, err)
	}
	return room, nil
}

func (s *Store) listRooms(ctx context.Context, query string, args ...any) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// ListRecoverable returns rooms that may still need scheduling or a stream restart.
func (s *Store) ListRecoverable(ctx context.Context, since time.Time) ([]store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM room_slots
		WHERE status = ANY($1) AND isha_bucket_utc > $2
		ORDER BY isha_bucket_utc ASC`

	statuses := pq.Array([]string{
		string(store.RoomStatusScheduled),
		string(store.RoomStatusBuilding),
		string(store.RoomStatusLive),
	})
	rooms, err := s.listRooms(ctx, query, statuses, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recoverable rooms: %w", err)
	}
	return rooms, nil
}

// ListExpiredPrivate returns live private rooms anchored before cutoff.
func (s *Store) ListExpiredPrivate(ctx context.Context, cutoff time.Time) ([]store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM room_slots
		WHERE is_private = TRUE AND status = $1 AND isha_bucket_utc < $2`

	rooms, err := s.listRooms(ctx, query, store.RoomStatusLive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired private rooms: %w", err)
	}
	return rooms, nil
}

// ListRecent returns the newest rooms by anchor time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM room_slots ORDER BY isha_bucket_utc DESC LIMIT $1`

	rooms, err := s.listRooms(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent rooms: %w", err)
	}
	return rooms, nil
}

// CountByStatus returns the number of rooms per status.
func (s *Store) CountByStatus(ctx context.Context) ([]store.StatusCount, error) {
	query := `SELECT status, COUNT(*) FROM room_slots GROUP BY status ORDER BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count rooms: %w", err)
	}
	defer rows.Close()

	var counts []store.StatusCount
	for rows.Next() {
		var c store.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// transition runs a conditional UPDATE and reports whether a row moved.
func (s *Store) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkBuilding moves scheduled|building -> building and clears any previous program.
func (s *Store) MarkBuilding(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE room_slots
		SET status = $2, playlist_built = FALSE, stream_path = NULL
		WHERE id = $1 AND status IN ($3, $2)`

	ok, err := s.transition(ctx, query, id, store.RoomStatusBuilding, store.RoomStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("failed to mark room %s building: %w", id, err)
	}
	return ok, nil
}

// MarkBuilt moves building -> scheduled with the program reference set.
func (s *Store) MarkBuilt(ctx context.Context, id uuid.UUID, programRef string) (bool, error) {
	query := `UPDATE room_slots
		SET status = $2, playlist_built = TRUE, stream_path = $3
		WHERE id = $1 AND status = $4`

	ok, err := s.transition(ctx, query, id, store.RoomStatusScheduled, programRef, store.RoomStatusBuilding)
	if err != nil {
		return false, fmt.Errorf("failed to mark room %s built: %w", id, err)
	}
	return ok, nil
}

// ResetBuild moves building -> scheduled with the program cleared.
func (s *Store) ResetBuild(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE room_slots
		SET status = $2, playlist_built = FALSE, stream_path = NULL
		WHERE id = $1 AND status = $3`

	ok, err := s.transition(ctx, query, id, store.RoomStatusScheduled, store.RoomStatusBuilding)
	if err != nil {
		return false, fmt.Errorf("failed to reset build for room %s: %w", id, err)
	}
	return ok, nil
}

// MarkLive moves a built scheduled room -> live.
func (s *Store) MarkLive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE room_slots
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4 AND playlist_built = TRUE AND stream_path IS NOT NULL`

	ok, err := s.transition(ctx, query, id, store.RoomStatusLive, at, store.RoomStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("failed to mark room %s live: %w", id, err)
	}
	return ok, nil
}

// MarkCompleted moves live -> completed.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE room_slots
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status = $4`

	ok, err := s.transition(ctx, query, id, store.RoomStatusCompleted, at, store.RoomStatusLive)
	if err != nil {
		return false, fmt.Errorf("failed to mark room %s completed: %w", id, err)
	}
	return ok, nil
}
