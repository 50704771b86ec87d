// Package announce pushes real-time room events to connected clients.
//
// Events are published as JSON on the Redis channel room:<id>:events, where the
// web tier relays them to sockets joined to the room.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"roomplane/pkg/api"

	"github.com/redis/go-redis/v9"
)

// Channel returns the pub/sub channel for a room.
func Channel(roomID string) string {
	return fmt.Sprintf("room:%s:events", roomID)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisAnnouncer publishes room events to Redis.
type RedisAnnouncer struct {
	client publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisAnnouncer parses redisURL, connects and verifies the connection.
func NewRedisAnnouncer(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisAnnouncer, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return newRedisAnnouncer(client, logger), client, nil
}

func newRedisAnnouncer(client publisher, logger *slog.Logger) *RedisAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAnnouncer{client: client, logger: logger, now: time.Now}
}

// Announce publishes event with payload to the room's channel.
func (a *RedisAnnouncer) Announce(ctx context.Context, roomID, event string, payload map[string]any) error {
	body, err := json.Marshal(api.RoomEvent{
		Event:   event,
		RoomID:  roomID,
		Payload: payload,
		At:      a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	receivers, err := a.client.Publish(ctx, Channel(roomID), body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s for room %s: %w", event, roomID, err)
	}
	a.logger.Debug("room event published", "room_id", roomID, "event", event, "receivers", receivers)
	return nil
}

// LogAnnouncer only logs events. Used when Redis is not configured.
type LogAnnouncer struct {
	logger *slog.Logger
}

// NewLogAnnouncer creates a LogAnnouncer.
func NewLogAnnouncer(logger *slog.Logger) *LogAnnouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAnnouncer{logger: logger}
}

func (a *LogAnnouncer) Announce(ctx context.Context, roomID, event string, payload map[string]any) error {
	a.logger.Info("room event", "room_id", roomID, "event", event, "payload", payload)
	return nil
}
