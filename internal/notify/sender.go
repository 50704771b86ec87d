package notify

import (
	"context"
	"errors"

	"roomplane/internal/store"
)

// Delivery channels, as stored in the notification log.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// ErrNoAddress is returned by a Sender when the subscriber has no address for its channel.
var ErrNoAddress = errors.New("subscriber has no address for channel")

// Sender delivers a message on one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, to store.Subscriber, msg Message) error
}

// wants reports whether the subscriber opted into channel and has an address for it.
func wants(sub store.Subscriber, channel string) bool {
	switch channel {
	case ChannelWhatsApp:
		return sub.NotifyWhatsApp && sub.Phone != ""
	case ChannelEmail:
		return sub.NotifyEmail && sub.Email != ""
	default:
		return false
	}
}
