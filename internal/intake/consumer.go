// Package intake consumes room.created messages from RabbitMQ and schedules the rooms they name.
//
// Room creation lives in the web tier. It publishes {"room_id": "..."} once the row is committed;
// the orchestrator loads the room and registers its phase jobs.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roomplane/internal/orchestrator"
	"roomplane/internal/store"
	"roomplane/pkg/api"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue room.created messages are delivered to.
const DefaultQueue = "room.created"

// RoomScheduler registers a room's phase jobs.
type RoomScheduler interface {
	ScheduleRoomByID(ctx context.Context, id uuid.UUID) ([]orchestrator.PlannedJob, error)
}

// errPermanent marks a message that will never succeed and must not be requeued.
var errPermanent = errors.New("permanent")

// Options configures a Consumer.
type Options struct {
	URL        string
	Queue      string
	Prefetch   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// Consumer reads room.created messages and keeps reconnecting until its context ends.
type Consumer struct {
	opts  Options
	sched RoomScheduler
	log   *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(opts Options, sched RoomScheduler) (*Consumer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("room scheduler is required")
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Consumer{opts: opts, sched: sched, log: opts.Logger.With("component", "intake")}, nil
}

// Run dials the broker and consumes until ctx is cancelled. Broken connections are retried
// with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		conn, err := amqp.Dial(c.opts.URL)
		if err != nil {
			c.log.Warn("failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, c.opts.MaxBackoff)
			continue
		}
		backoff = c.opts.MinBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, backoff) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		c.log.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming", "queue", c.opts.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPermanent):
		c.log.Error("dropping room.created message", "error", err, "body", string(d.Body))
		_ = d.Nack(false, false)
	default:
		// Requeue once; a redelivered message that fails again is dropped to avoid a hot loop.
		requeue := !d.Redelivered
		c.log.Error("room.created handling failed", "error", err, "requeue", requeue)
		_ = d.Nack(false, requeue)
	}
}

// Handle decodes one message body and schedules the room it names.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var msg api.RoomCreatedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errPermanent, err)
	}
	id, err := uuid.Parse(msg.RoomID)
	if err != nil {
		return fmt.Errorf("%w: invalid room_id %q", errPermanent, msg.RoomID)
	}

	plan, err := c.sched.ScheduleRoomByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: room %s not found", errPermanent, id)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule room %s: %w", id, err)
	}
	c.log.Info("room scheduled from intake", "room_id", id.String(), "jobs", len(plan))
	return nil
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleep waits for d or until ctx ends. It reports whether the full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
