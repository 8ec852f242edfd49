// Package realtime is the presence, typing and voice-coordination core:
// it keeps the ephemeral state store consistent across many concurrent
// client connections and fans delta events out to the right subscribers.
package realtime

// Identity is the authenticated principal behind a connection; immutable
// for the lifetime of a session.
type Identity struct {
	UserID   string
	Username string
}

// Conn is one live transport-level session. The socket.io gateway adapts
// its sockets to this; tests use in-memory fakes.
type Conn interface {
	ID() string
	Send(event string, payload interface{}) error
	Close() error
}

// Broadcast group keys. Server groups carry presence, voice and membership
// events to everyone in a server; channel groups carry typing events only
// to clients currently viewing that channel.
const (
	groupServerPrefix  = "server:"
	groupChannelPrefix = "channel:"
)

func ServerGroup(serverID string) string   { return groupServerPrefix + serverID }
func ChannelGroup(channelID string) string { return groupChannelPrefix + channelID }

// Outbound event names, matching the client contract verbatim.
const (
	EventPresenceUpdate = "presence-update"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventVoiceState     = "voice-state"
	EventVoiceMove      = "voice-move"
)

// Voice-state actions.
const (
	VoiceActionJoin   = "join"
	VoiceActionLeave  = "leave"
	VoiceActionUpdate = "update"
)

type PresenceUpdatePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type TypingStartPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

type TypingStopPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type VoiceStatePayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Muted     bool   `json:"muted"`
	Deafened  bool   `json:"deafened"`
	Video     bool   `json:"video"`
	Action    string `json:"action"`
}

type VoiceMovePayload struct {
	ChannelID string `json:"channel_id"`
	Token     string `json:"token"`
	URL       string `json:"url"`
}
