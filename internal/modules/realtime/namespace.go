package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// Inbound event names, matching the client contract verbatim.
const (
	msgJoinServer   = "join-server"
	msgLeaveServer  = "leave-server"
	msgJoinChannel  = "join-channel"
	msgLeaveChannel = "leave-channel"
	msgTypingStart  = "typing-start"
	msgTypingStop   = "typing-stop"
	msgVoiceState   = "voice-state-update"
	msgMoveUser     = "move-user"
)

func (g *Gateway) registerNamespace() {
	ns := g.sio.Of("/", nil)
	_ = ns.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		identity, err := g.validate(extractToken(client))
		if err != nil {
			g.logger.Debug("handshake auth failed", zap.Error(err))
			client.Disconnect(true)
			return
		}

		conn := &socketConn{client: client}
		ctx := context.Background()
		if err := g.coord.HandleConnect(ctx, identity, conn); err != nil {
			g.logger.Warn("connect handling failed",
				zap.String("user", identity.UserID), zap.Error(err))
			client.Disconnect(true)
			return
		}
		g.logger.Info("socket connected",
			zap.String("user", identity.UserID),
			zap.String("username", identity.Username),
			zap.String("sid", conn.ID()))

		stopHeartbeat := make(chan struct{})
		go g.runHeartbeat(identity, stopHeartbeat)

		g.onAction(client, conn, identity, msgJoinServer, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return JoinServerAction{ServerID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgLeaveServer, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return LeaveServerAction{ServerID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgJoinChannel, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return JoinChannelAction{ChannelID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgLeaveChannel, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return LeaveChannelAction{ChannelID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgTypingStart, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return StartTypingAction{ChannelID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgTypingStop, func(args []any) (Action, bool) {
			id := strFromAny(firstArg(args))
			return StopTypingAction{ChannelID: id}, id != ""
		})
		g.onAction(client, conn, identity, msgVoiceState, func(args []any) (Action, bool) {
			payload := mapFromAny(firstArg(args))
			action := VoiceStateAction{
				Muted:    boolFromAny(payload["muted"]),
				Deafened: boolFromAny(payload["deafened"]),
				Video:    boolFromAny(payload["video"]),
			}
			if id := strFromAny(payload["channel_id"]); id != "" {
				action.ChannelID = &id
			}
			return action, true
		})
		g.onAction(client, conn, identity, msgMoveUser, func(args []any) (Action, bool) {
			payload := mapFromAny(firstArg(args))
			target := strFromAny(payload["user_id"])
			channel := strFromAny(payload["channel_id"])
			return MoveUserAction{TargetUserID: target, ChannelID: channel}, target != "" && channel != ""
		})

		_ = client.On("disconnect", func(_ ...any) {
			close(stopHeartbeat)
			g.coord.HandleDisconnect(context.Background(), conn.ID())
			g.logger.Info("socket disconnected",
				zap.String("user", identity.UserID), zap.String("sid", conn.ID()))
		})
	})
}

// onAction wires one inbound event to a coordinator dispatch. Validation
// failures are acknowledged to the caller only; nothing is broadcast.
func (g *Gateway) onAction(client *socketio.Socket, conn Conn, identity Identity,
	event string, decode func([]any) (Action, bool)) {
	_ = client.On(event, func(args ...any) {
		action, ok := decode(args)
		if !ok {
			return
		}
		err := g.coord.Dispatch(context.Background(), conn, identity, action)
		if err != nil {
			g.logger.Debug("action rejected",
				zap.String("event", event),
				zap.String("user", identity.UserID),
				zap.Error(err))
		}
		ackArgs(args, err)
	})
}

// ackArgs invokes the client's ack callback when one was sent.
func ackArgs(args []any, err error) {
	if len(args) == 0 {
		return
	}
	if ack, ok := args[len(args)-1].(func([]any, error)); ok {
		ack(nil, err)
	}
}

// runHeartbeat refreshes the presence TTL until the connection closes.
func (g *Gateway) runHeartbeat(identity Identity, stop <-chan struct{}) {
	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.coord.Heartbeat(context.Background(), identity)
		}
	}
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := strFromAny(mapFromAny(handshake.Auth)["token"]); token != "" {
		return normalizeToken(token)
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return normalizeToken(token)
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return normalizeToken(token)
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func mapFromAny(v interface{}) map[string]interface{} {
	switch typed := v.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return map[string]interface{}{}
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
}

func strFromAny(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}

func boolFromAny(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
