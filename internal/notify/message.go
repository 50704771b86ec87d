package notify

import (
	"fmt"
	"strings"

	"roomplane/internal/store"
)

// Message is a rendered reminder.
type Message struct {
	Subject string
	Body    string
}

type roomKind struct {
	rakats      int
	juzPerNight float64
}

// Approximate running time in minutes per room configuration.
var roomDurations = map[roomKind]int{
	{8, 1.0}:  45,
	{8, 0.5}:  25,
	{20, 1.0}: 90,
	{20, 0.5}: 50,
}

const defaultDuration = 60

// Duration returns the approximate length of a room in minutes.
func Duration(room *store.Room) int {
	if d, ok := roomDurations[roomKind{room.Rakats, room.JuzPerNight}]; ok {
		return d
	}
	return defaultDuration
}

// JuzLabel describes the portion recited, e.g. "Juz 3 (second half)".
func JuzLabel(room *store.Room) string {
	label := fmt.Sprintf("Juz %d", room.JuzNumber)
	if room.JuzHalf != nil {
		switch *room.JuzHalf {
		case 1:
			label += " (first half)"
		case 2:
			label += " (second half)"
		}
	}
	return label
}

// JoinURL returns the page subscribers open to join the room.
func JoinURL(frontendURL string, room *store.Room) string {
	return frontendURL + "/room/" + room.ID.String()
}

// BuildMessage renders the reminder sent on every channel.
func BuildMessage(name string, room *store.Room, joinURL string, lead int) Message {
	if name == "" {
		name = "dear worshipper"
	}

	var b strings.Builder
	b.WriteString("Tarteel — Taraweeh Reminder\n\n")
	fmt.Fprintf(&b, "Assalamu Alaikum %s,\n\n", name)
	fmt.Fprintf(&b, "Your Taraweeh room opens in %d minutes.\n\n", lead)
	fmt.Fprintf(&b, "Night %d of Ramadan\n", room.Night)
	fmt.Fprintf(&b, "%s · %d Rakats\n", JuzLabel(room), room.Rakats)
	fmt.Fprintf(&b, "Duration: ~%d minutes\n\n", Duration(room))
	fmt.Fprintf(&b, "Join your room: %s\n\n", joinURL)
	b.WriteString("May Allah accept your prayers.")

	return Message{
		Subject: fmt.Sprintf("Taraweeh Night %d — Room Ready in %d Minutes", room.Night, lead),
		Body:    b.String(),
	}
}

// E164 normalizes a stored phone number to +<digits>.
func E164(phone string) string {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone
}
