package realtime

// Action is a tagged variant of every inbound client action. The gateway
// decodes wire events into these; the coordinator's Dispatch is the single
// transition function, which keeps per-identity serialization in one place.
type Action interface{ isAction() }

type JoinServerAction struct{ ServerID string }

type LeaveServerAction struct{ ServerID string }

type JoinChannelAction struct{ ChannelID string }

type LeaveChannelAction struct{ ChannelID string }

type StartTypingAction struct{ ChannelID string }

type StopTypingAction struct{ ChannelID string }

// VoiceStateAction joins the given voice channel, updates in-room flags
// when ChannelID matches the current room, or leaves when ChannelID is nil.
type VoiceStateAction struct {
	ChannelID *string
	Muted     bool
	Deafened  bool
	Video     bool
}

// MoveUserAction forcibly relocates another user's voice session; the
// caller must hold the admin role in the destination channel's server.
type MoveUserAction struct {
	TargetUserID string
	ChannelID    string
}

func (JoinServerAction) isAction()   {}
func (LeaveServerAction) isAction()  {}
func (JoinChannelAction) isAction()  {}
func (LeaveChannelAction) isAction() {}
func (StartTypingAction) isAction()  {}
func (StopTypingAction) isAction()   {}
func (VoiceStateAction) isAction()   {}
func (MoveUserAction) isAction()     {}
