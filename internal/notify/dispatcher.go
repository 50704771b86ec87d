// Package notify sends room reminders to subscribers and keeps the delivery log that makes re-sends safe.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"roomplane/internal/observability"
	"roomplane/internal/store"

	"golang.org/x/time/rate"
)

// channelOrder fixes the order channels are tried for each subscriber.
var channelOrder = []string{ChannelWhatsApp, ChannelEmail}

// Summary counts what one Notify call did.
type Summary struct {
	Eligible int
	Sent     int
	Failed   int
	// Skipped counts pairs already reached in an earlier wave.
	Skipped int
}

// Options configures a Dispatcher.
type Options struct {
	Subscribers   store.SubscriberStore
	Notifications store.NotificationStore
	Senders       []Sender
	FrontendURL   string
	// Rate limits deliveries per second on each channel. Zero means unlimited.
	Rate        float64
	Instruments *observability.Instruments
	Logger      *slog.Logger
	Now         func() time.Time
}

// Dispatcher delivers reminders for one lead-time wave at a time.
type Dispatcher struct {
	subs        store.SubscriberStore
	log         store.NotificationStore
	senders     map[string]Sender
	limiters    map[string]*rate.Limiter
	frontendURL string
	inst        *observability.Instruments
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. Channels without a Sender are skipped silently.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Subscribers == nil || opts.Notifications == nil {
		return nil, fmt.Errorf("subscriber and notification stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		subs:        opts.Subscribers,
		log:         opts.Notifications,
		senders:     make(map[string]Sender),
		limiters:    make(map[string]*rate.Limiter),
		frontendURL: opts.FrontendURL,
		inst:        opts.Instruments,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	for _, s := range opts.Senders {
		ch := s.Channel()
		d.senders[ch] = s
		limit, burst := rate.Inf, 1
		if opts.Rate > 0 {
			limit = rate.Limit(opts.Rate)
			burst = max(1, int(opts.Rate))
		}
		d.limiters[ch] = rate.NewLimiter(limit, burst)
	}
	return d, nil
}

// Channels returns the channels that have a configured sender.
func (d *Dispatcher) Channels() []string {
	var out []string
	for _, ch := range channelOrder {
		if _, ok := d.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Notify sends the lead-minute reminder for room to every matching subscriber.
// A (subscriber, channel) pair with a sent record is never contacted again; failed pairs are retried.
// One failed delivery does not stop the others.
func (d *Dispatcher) Notify(ctx context.Context, room *store.Room, lead int) (*Summary, error) {
	logger := d.logger.With("room_id", room.ID.String(), "lead_minutes", lead)

	subs, err := d.subs.EligibleSubscribers(ctx, room, lead)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	already, err := d.log.SentKeys(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification log: %w", err)
	}

	sum := &Summary{Eligible: len(subs)}
	joinURL := JoinURL(d.frontendURL, room)

	for _, sub := range subs {
		msg := BuildMessage(sub.Name, room, joinURL, lead)

		for _, ch := range channelOrder {
			if !wants(sub, ch) {
				continue
			}
			sender, ok := d.senders[ch]
			if !ok {
				continue
			}
			if already[store.SentKey{UserID: sub.ID, Channel: ch}] {
				sum.Skipped++
				continue
			}
			if err := d.limiters[ch].Wait(ctx); err != nil {
				return sum, err
			}

			status := store.NotificationSent
			outcome := observability.OutcomeOK
			if err := sender.Send(ctx, sub, msg); err != nil {
				status = store.NotificationFailed
				outcome = observability.OutcomeFailed
				sum.Failed++
				logger.Warn("notification failed", "user_id", sub.ID.String(), "channel", ch, "error", err)
			} else {
				sum.Sent++
			}
			d.inst.Notification(ctx, ch, outcome)

			rec := &store.NotificationRecord{
				UserID:  sub.ID,
				RoomID:  room.ID,
				Channel: ch,
				Status:  status,
				SentAt:  d.now().UTC(),
			}
			if err := d.log.AppendNotification(ctx, rec); err != nil {
				logger.Error("failed to record notification", "user_id", sub.ID.String(), "channel", ch, "status", status, "error", err)
			}
		}
	}

	logger.Info("notifications dispatched",
		"eligible", sum.Eligible,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
	)
	return sum, nil
}
