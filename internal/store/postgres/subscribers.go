package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"roomplane/internal/store"

	"github.com/google/uuid"
)

// EligibleSubscribers returns active users scheduled for the room's anchor bucket and night,
// whose prayer preferences match the room and whose lead time equals leadMinutes.
func (s *Store) EligibleSubscribers(ctx context.Context, room *store.Room, leadMinutes int) ([]store.Subscriber, error) {
	query := `
		SELECT u.id, u.name, u.email, u.phone, u.notify_whatsapp, u.notify_email, u.notify_minutes_before
		FROM users u
		JOIN user_isha_schedule sch ON sch.user_id = u.id
		WHERE sch.isha_bucket_utc = $1
		  AND sch.ramadan_night = $2
		  AND u.rakats = $3
		  AND u.juz_per_night = $4
		  AND u.notify_minutes_before = $5
		  AND u.is_active = TRUE
		ORDER BY u.id
	`

	rows, err := s.db.QueryContext(ctx, query,
		room.AnchorAt, room.Night, room.Rakats, room.JuzPerNight, leadMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers for room %s: %w", room.ID, err)
	}
	defer rows.Close()

	var subs []store.Subscriber
	for rows.Next() {
		var (
			sub   store.Subscriber
			name  sql.NullString
			phone sql.NullString
		)
		if err := rows.Scan(&sub.ID, &name, &sub.Email, &phone,
			&sub.NotifyWhatsApp, &sub.NotifyEmail, &sub.NotifyMinutesBefore); err != nil {
			return nil, err
		}
		sub.Name = name.String
		sub.Phone = phone.String
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SentKeys returns every (user, channel) already reached for the room.
func (s *Store) SentKeys(ctx context.Context, roomID uuid.UUID) (map[store.SentKey]bool, error) {
	query := `SELECT user_id, channel FROM notification_log WHERE room_slot_id = $1 AND status = $2`

	rows, err := s.db.QueryContext(ctx, query, roomID, store.NotificationSent)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification log for room %s: %w", roomID, err)
	}
	defer rows.Close()

	sent := make(map[store.SentKey]bool)
	for rows.Next() {
		var k store.SentKey
		if err := rows.Scan(&k.UserID, &k.Channel); err != nil {
			return nil, err
		}
		sent[k] = true
	}
	return sent, rows.Err()
}

// AppendNotification records a delivery attempt. Records are never updated.
func (s *Store) AppendNotification(ctx context.Context, rec *store.NotificationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO notification_log (id, user_id, room_slot_id, channel, status, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.RoomID, rec.Channel, rec.Status, rec.SentAt,
	); err != nil {
		return fmt.Errorf("failed to append notification for user %s: %w", rec.UserID, err)
	}
	return nil
}
