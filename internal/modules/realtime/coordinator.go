package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ctc-chat/core/internal/models"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
	"github.com/ctc-chat/core/internal/modules/realtime/state"
	"go.uber.org/zap"
)

// MembershipStore is the durable source of truth for server membership,
// roles and channels. Consulted, never written.
type MembershipStore interface {
	ListServerMemberships(ctx context.Context, userID string) ([]membership.Membership, error)
	IsMember(ctx context.Context, serverID, userID string) (bool, error)
	Role(ctx context.Context, serverID, userID string) (models.ServerRole, error)
	Channel(ctx context.Context, channelID string) (*membership.ChannelInfo, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Validation errors. The acting client sees its action fail; nothing is
// broadcast and the event loop is unaffected.
var (
	ErrChannelNotFound  = errors.New("realtime: channel not found")
	ErrNotVoiceChannel  = errors.New("realtime: not a voice channel")
	ErrNotMember        = errors.New("realtime: not a member of this server")
	ErrNotAdmin         = errors.New("realtime: admin role required")
	ErrNotInVoice       = errors.New("realtime: target is not in a voice channel")
	ErrNotSubscribed    = errors.New("realtime: not subscribed to this channel")
	ErrConnectionClosed = errors.New("realtime: connection closed")
)

// Coordinator is the per-identity state machine behind every realtime
// action: it mutates the ephemeral state store, enforces the
// one-voice-room-per-identity invariant, and decides which broadcast
// groups see which delta events. All mutations of one identity's voice
// state are serialized under a per-identity lock; distinct identities
// proceed concurrently.
type Coordinator struct {
	store   state.Store
	members MembershipStore
	reg     *Registry
	subs    *Subscriptions
	pub     Publisher
	media   media.Issuer
	locks   *identityLocks
	logger  *zap.Logger
}

func NewCoordinator(store state.Store, members MembershipStore, reg *Registry,
	subs *Subscriptions, pub Publisher, issuer media.Issuer, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		members: members,
		reg:     reg,
		subs:    subs,
		pub:     pub,
		media:   issuer,
		locks:   newIdentityLocks(),
		logger:  logger,
	}
}

// HandleConnect registers a connection, auto-subscribes it to every server
// the identity belongs to, and, for the identity's first connection, marks
// it online and announces that to each server group. Additional
// connections of an already-online identity re-emit nothing.
func (c *Coordinator) HandleConnect(ctx context.Context, identity Identity, conn Conn) error {
	memberships, err := c.members.ListServerMemberships(ctx, identity.UserID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}

	// Registration happens under the identity lock so two simultaneous
	// first connections cannot both observe "not first" and skip the
	// online transition.
	unlock := c.locks.lock(identity.UserID)
	defer unlock()

	connID := c.reg.Register(identity, conn)
	for _, m := range memberships {
		c.subs.Subscribe(connID, ServerGroup(m.ServerID))
	}

	if len(c.reg.ConnectionsFor(identity.UserID)) > 1 {
		return nil
	}
	if err := c.store.SetOnline(ctx, identity.UserID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	for _, m := range memberships {
		c.pub.Publish(ctx, ServerGroup(m.ServerID), EventPresenceUpdate,
			PresenceUpdatePayload{UserID: identity.UserID, Status: state.StatusOnline})
	}
	return nil
}

// HandleDisconnect tears a connection down. When it was the identity's
// last live connection the identity goes fully offline: any voice
// participation is removed (with a leave broadcast) and one offline
// presence event is emitted per server group the connection was in.
func (c *Coordinator) HandleDisconnect(ctx context.Context, connID string) {
	identity, last, ok := c.reg.Unregister(connID)
	if !ok {
		return
	}
	groups := c.subs.DropConn(connID)
	if !last {
		return
	}

	unlock := c.locks.lock(identity.UserID)
	defer unlock()

	if room, err := c.store.VoiceRoomOf(ctx, identity.UserID); err != nil {
		c.logger.Warn("voice lookup on disconnect failed",
			zap.String("user", identity.UserID), zap.Error(err))
	} else if room != "" {
		// The participant record has no TTL backstop; a failed teardown
		// orphans it until the user rejoins.
		if err := c.leaveVoiceLocked(ctx, identity, room); err != nil {
			c.logger.Warn("voice teardown on disconnect failed",
				zap.String("user", identity.UserID), zap.String("room", room), zap.Error(err))
		}
	}

	if err := c.store.SetOffline(ctx, identity.UserID); err != nil {
		c.logger.Warn("set offline failed", zap.String("user", identity.UserID), zap.Error(err))
	}

	// Every server membership gets exactly one offline broadcast,
	// including servers the connection had unsubscribed from.
	memberships, err := c.members.ListServerMemberships(ctx, identity.UserID)
	if err != nil {
		c.logger.Warn("membership lookup on disconnect failed",
			zap.String("user", identity.UserID), zap.Error(err))
		for _, group := range groups {
			if strings.HasPrefix(group, groupServerPrefix) {
				c.pub.Publish(ctx, group, EventPresenceUpdate,
					PresenceUpdatePayload{UserID: identity.UserID, Status: state.StatusOffline})
			}
		}
		return
	}
	for _, m := range memberships {
		c.pub.Publish(ctx, ServerGroup(m.ServerID), EventPresenceUpdate,
			PresenceUpdatePayload{UserID: identity.UserID, Status: state.StatusOffline})
	}
}

// Heartbeat refreshes the identity's presence TTL. Called on a fixed
// interval while any connection is open; the TTL is the backstop against
// a missed disconnect.
func (c *Coordinator) Heartbeat(ctx context.Context, identity Identity) {
	if err := c.store.RefreshPresence(ctx, identity.UserID); err != nil {
		c.logger.Warn("presence refresh failed", zap.String("user", identity.UserID), zap.Error(err))
	}
}

// Dispatch routes one inbound action through the state machine.
func (c *Coordinator) Dispatch(ctx context.Context, conn Conn, identity Identity, action Action) error {
	switch a := action.(type) {
	case JoinServerAction:
		return c.joinServer(ctx, conn, identity, a.ServerID)
	case LeaveServerAction:
		c.subs.Unsubscribe(conn.ID(), ServerGroup(a.ServerID))
		return nil
	case JoinChannelAction:
		c.subs.Subscribe(conn.ID(), ChannelGroup(a.ChannelID))
		return nil
	case LeaveChannelAction:
		c.subs.Unsubscribe(conn.ID(), ChannelGroup(a.ChannelID))
		return nil
	case StartTypingAction:
		return c.startTyping(ctx, conn, identity, a.ChannelID)
	case StopTypingAction:
		return c.stopTyping(ctx, conn, identity, a.ChannelID)
	case VoiceStateAction:
		if a.ChannelID == nil {
			return c.LeaveVoice(ctx, identity)
		}
		return c.JoinVoice(ctx, conn, identity, *a.ChannelID, state.Participant{
			Username: identity.Username, Muted: a.Muted, Deafened: a.Deafened, Video: a.Video,
		})
	case MoveUserAction:
		return c.AdminMove(ctx, identity, a.TargetUserID, a.ChannelID)
	default:
		return fmt.Errorf("realtime: unknown action %T", action)
	}
}

func (c *Coordinator) joinServer(ctx context.Context, conn Conn, identity Identity, serverID string) error {
	ok, err := c.members.IsMember(ctx, serverID, identity.UserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	c.subs.Subscribe(conn.ID(), ServerGroup(serverID))
	return nil
}

func (c *Coordinator) startTyping(ctx context.Context, conn Conn, identity Identity, channelID string) error {
	group := ChannelGroup(channelID)
	if !c.subs.Subscribed(conn.ID(), group) {
		return ErrNotSubscribed
	}
	if err := c.store.SetTyping(ctx, channelID, identity.UserID, identity.Username); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	c.pub.PublishExcept(ctx, group, conn.ID(), EventTypingStart,
		TypingStartPayload{ChannelID: channelID, UserID: identity.UserID, Username: identity.Username})
	return nil
}

func (c *Coordinator) stopTyping(ctx context.Context, conn Conn, identity Identity, channelID string) error {
	if err := c.store.ClearTyping(ctx, channelID, identity.UserID); err != nil {
		return fmt.Errorf("clear typing: %w", err)
	}
	c.pub.PublishExcept(ctx, ChannelGroup(channelID), conn.ID(), EventTypingStop,
		TypingStopPayload{ChannelID: channelID, UserID: identity.UserID})
	return nil
}

// JoinVoice moves the caller into a voice channel, leaving any current one
// first. Joining the current channel again updates the mute/deafen/video
// flags in place.
func (c *Coordinator) JoinVoice(ctx context.Context, conn Conn, identity Identity, channelID string, p state.Participant) error {
	ch, err := c.resolveVoiceChannel(ctx, channelID)
	if err != nil {
		return err
	}
	isMember, err := c.members.IsMember(ctx, ch.ServerID, identity.UserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !isMember {
		return ErrNotMember
	}

	unlock := c.locks.lock(identity.UserID)
	defer unlock()

	current, err := c.store.VoiceRoomOf(ctx, identity.UserID)
	if err != nil {
		return fmt.Errorf("voice lookup: %w", err)
	}

	if current == channelID {
		if err := c.store.UpdateVoice(ctx, channelID, identity.UserID, p); err != nil {
			return fmt.Errorf("update voice state: %w", err)
		}
		c.broadcastVoice(ctx, ch.ServerID, channelID, identity.UserID, p, VoiceActionUpdate)
		return nil
	}

	// Remove-then-add: the old room is vacated before the new one is
	// claimed, so a store failure in between never yields two locations.
	var oldServer string
	if current != "" {
		oldServer = c.serverOfRoom(ctx, current)
		if err := c.store.LeaveVoice(ctx, current, identity.UserID); err != nil {
			return fmt.Errorf("leave current voice channel: %w", err)
		}
	}

	stale, err := c.store.JoinVoice(ctx, channelID, identity.UserID, p)
	if err != nil {
		// The store compensated; the caller is in no room. Announce the
		// departure from the old room so bystanders see consistent state.
		if current != "" && oldServer != "" {
			c.broadcastVoice(ctx, oldServer, current, identity.UserID, p, VoiceActionLeave)
		}
		return fmt.Errorf("join voice channel: %w", err)
	}

	// A disconnect may have raced this action (its cleanup runs under the
	// same identity lock, before or after us). If the connection is gone,
	// roll back instead of parking an orphaned participant in the room.
	if !c.reg.Alive(conn.ID()) {
		_ = c.store.LeaveVoice(ctx, channelID, identity.UserID)
		if current != "" && oldServer != "" {
			c.broadcastVoice(ctx, oldServer, current, identity.UserID, p, VoiceActionLeave)
		}
		return ErrConnectionClosed
	}

	if current != "" && oldServer != "" {
		c.broadcastVoice(ctx, oldServer, current, identity.UserID, p, VoiceActionLeave)
	}
	if stale != "" && stale != current && stale != channelID {
		// A concurrent writer slipped a different room into the location
		// key; the store overwrote it. Emit a corrective leave so the
		// stale room's bystanders converge.
		if staleServer := c.serverOfRoom(ctx, stale); staleServer != "" {
			c.broadcastVoice(ctx, staleServer, stale, identity.UserID, p, VoiceActionLeave)
		}
	}
	c.broadcastVoice(ctx, ch.ServerID, channelID, identity.UserID, p, VoiceActionJoin)
	return nil
}

// LeaveVoice removes the caller's voice participation, if any.
func (c *Coordinator) LeaveVoice(ctx context.Context, identity Identity) error {
	unlock := c.locks.lock(identity.UserID)
	defer unlock()

	room, err := c.store.VoiceRoomOf(ctx, identity.UserID)
	if err != nil {
		return fmt.Errorf("voice lookup: %w", err)
	}
	if room == "" {
		return nil
	}
	return c.leaveVoiceLocked(ctx, identity, room)
}

// leaveVoiceLocked removes the identity from room and broadcasts the
// leave. Caller holds the identity lock.
func (c *Coordinator) leaveVoiceLocked(ctx context.Context, identity Identity, room string) error {
	if err := c.store.LeaveVoice(ctx, room, identity.UserID); err != nil {
		return fmt.Errorf("leave voice channel: %w", err)
	}
	if server := c.serverOfRoom(ctx, room); server != "" {
		c.broadcastVoice(ctx, server, room, identity.UserID,
			state.Participant{Username: identity.Username}, VoiceActionLeave)
	}
	return nil
}

// AdminMove forcibly relocates target into destChannelID. The actor must
// hold the admin role in the destination's server, the target must be a
// member of that server and currently in some voice room. The moved user
// receives a voice-move directive with a fresh media credential on every
// live connection.
func (c *Coordinator) AdminMove(ctx context.Context, actor Identity, targetUserID, destChannelID string) error {
	ch, err := c.resolveVoiceChannel(ctx, destChannelID)
	if err != nil {
		return err
	}

	role, err := c.members.Role(ctx, ch.ServerID, actor.UserID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			return ErrNotAdmin
		}
		return fmt.Errorf("role check: %w", err)
	}
	if role != models.RoleAdmin {
		return ErrNotAdmin
	}

	isMember, err := c.members.IsMember(ctx, ch.ServerID, targetUserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !isMember {
		return ErrNotMember
	}

	name, err := c.members.DisplayName(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("resolve target name: %w", err)
	}
	target := Identity{UserID: targetUserID, Username: name}

	unlock := c.locks.lock(target.UserID)
	defer unlock()

	current, err := c.store.VoiceRoomOf(ctx, target.UserID)
	if err != nil {
		return fmt.Errorf("voice lookup: %w", err)
	}
	if current == "" {
		return ErrNotInVoice
	}
	if current == destChannelID {
		return nil
	}

	oldServer := c.serverOfRoom(ctx, current)
	if err := c.store.LeaveVoice(ctx, current, target.UserID); err != nil {
		return fmt.Errorf("leave current voice channel: %w", err)
	}

	p := state.Participant{Username: target.Username}
	if _, err := c.store.JoinVoice(ctx, destChannelID, target.UserID, p); err != nil {
		if oldServer != "" {
			c.broadcastVoice(ctx, oldServer, current, target.UserID, p, VoiceActionLeave)
		}
		return fmt.Errorf("join voice channel: %w", err)
	}

	if oldServer != "" {
		c.broadcastVoice(ctx, oldServer, current, target.UserID, p, VoiceActionLeave)
	}
	c.broadcastVoice(ctx, ch.ServerID, destChannelID, target.UserID, p, VoiceActionJoin)

	cred, err := c.media.IssueCredential(target.UserID, target.Username, destChannelID)
	if err != nil {
		// The move is committed and broadcast; the client can still fetch
		// a credential over the HTTP voice route.
		c.logger.Warn("media credential for moved user failed",
			zap.String("user", target.UserID), zap.String("room", destChannelID), zap.Error(err))
		return nil
	}
	c.pub.SendToUser(ctx, target.UserID, EventVoiceMove,
		VoiceMovePayload{ChannelID: destChannelID, Token: cred.Token, URL: cred.URL})

	c.logger.Info("admin moved user between voice channels",
		zap.String("actor", actor.UserID),
		zap.String("target", target.UserID),
		zap.String("from", current),
		zap.String("to", destChannelID))
	return nil
}

func (c *Coordinator) resolveVoiceChannel(ctx context.Context, channelID string) (*membership.ChannelInfo, error) {
	ch, err := c.members.Channel(ctx, channelID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	if ch.Type != models.ChannelVoice {
		return nil, ErrNotVoiceChannel
	}
	return ch, nil
}

// serverOfRoom resolves a voice room to its server group id, best-effort.
func (c *Coordinator) serverOfRoom(ctx context.Context, roomID string) string {
	ch, err := c.members.Channel(ctx, roomID)
	if err != nil {
		c.logger.Warn("server lookup for voice room failed",
			zap.String("room", roomID), zap.Error(err))
		return ""
	}
	return ch.ServerID
}

func (c *Coordinator) broadcastVoice(ctx context.Context, serverID, channelID, userID string, p state.Participant, action string) {
	c.pub.Publish(ctx, ServerGroup(serverID), EventVoiceState, VoiceStatePayload{
		ChannelID: channelID,
		UserID:    userID,
		Username:  p.Username,
		Muted:     p.Muted,
		Deafened:  p.Deafened,
		Video:     p.Video,
		Action:    action,
	})
}
