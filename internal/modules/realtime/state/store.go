// Package state holds the shared, TTL-capable view of ephemeral realtime
// facts: who is online, who occupies which voice room, who is typing where.
// The store survives restarts of the engine process but relies on TTL
// expiry to model clients that vanish without a disconnect.
package state

import "context"

// Presence statuses as stored. Anything absent or expired reads as offline.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Participant is one user's state inside a voice room.
type Participant struct {
	Username string `json:"username"`
	Muted    bool   `json:"muted"`
	Deafened bool   `json:"deafened"`
	Video    bool   `json:"video"`
}

// TypingEntry records a user's last keystroke in a channel.
type TypingEntry struct {
	Username string `json:"username"`
	TS       int64  `json:"ts"`
}

// Store is the ephemeral state surface the coordinator mutates. All
// operations are single-key atomic; multi-step transitions rely on the
// coordinator's remove-then-add ordering under its per-identity lock.
type Store interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	RefreshPresence(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (string, error)

	// JoinVoice points the user at roomID and records the participant.
	// It returns the room the user-location key previously pointed at, if
	// any, so the caller can emit a corrective leave for state that a
	// racing writer left behind.
	JoinVoice(ctx context.Context, roomID, userID string, p Participant) (prevRoom string, err error)
	LeaveVoice(ctx context.Context, roomID, userID string) error
	// UpdateVoice rewrites the participant record in place (mute/deafen/
	// video toggles); the user's room assignment is untouched.
	UpdateVoice(ctx context.Context, roomID, userID string, p Participant) error
	VoiceRoomOf(ctx context.Context, userID string) (string, error)
	VoiceParticipants(ctx context.Context, roomID string) (map[string]Participant, error)

	SetTyping(ctx context.Context, channelID, userID, username string) error
	ClearTyping(ctx context.Context, channelID, userID string) error
	TypingUsers(ctx context.Context, channelID string) (map[string]TypingEntry, error)
}

// PubSub is the cross-process notification capability used by the event
// fanout. A single-process deployment may no-op both operations.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe blocks, invoking handler for every message on topic until
	// ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error
}
