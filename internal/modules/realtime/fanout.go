package realtime

import (
	"context"
	"encoding/json"

	"github.com/ctc-chat/core/internal/modules/realtime/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// relayTopic is the pub/sub topic all engine instances share.
const relayTopic = "ctc:realtime:events"

// Publisher is the coordinator's view of the fanout layer.
type Publisher interface {
	// Publish delivers an event to every connection subscribed to group.
	Publish(ctx context.Context, group, event string, payload interface{})
	// PublishExcept is Publish minus one connection, used so a client does
	// not echo its own typing events back to itself.
	PublishExcept(ctx context.Context, group, exceptConnID, event string, payload interface{})
	// SendToUser delivers directly to every live connection of one
	// identity, across all engine instances.
	SendToUser(ctx context.Context, userID, event string, payload interface{})
}

// relayEnvelope is the wire form an event takes between engine instances.
// Exactly one of Group and User is set.
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Group   string          `json:"group,omitempty"`
	User    string          `json:"user,omitempty"`
	Except  string          `json:"except,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Fanout delivers events to local subscribers and relays them through the
// state store's pub/sub so subscribers on other engine instances receive
// them too. Received relays are delivered locally only, never re-published.
type Fanout struct {
	instanceID string
	registry   *Registry
	subs       *Subscriptions
	bus        state.PubSub
	logger     *zap.Logger
}

func NewFanout(registry *Registry, subs *Subscriptions, bus state.PubSub, logger *zap.Logger) *Fanout {
	return &Fanout{
		instanceID: uuid.New().String(),
		registry:   registry,
		subs:       subs,
		bus:        bus,
		logger:     logger,
	}
}

// Run consumes the cross-instance relay until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	err := f.bus.Subscribe(ctx, relayTopic, f.handleRelay)
	if err != nil && ctx.Err() == nil {
		f.logger.Error("fanout relay subscription ended", zap.Error(err))
	}
}

func (f *Fanout) Publish(ctx context.Context, group, event string, payload interface{}) {
	f.PublishExcept(ctx, group, "", event, payload)
}

func (f *Fanout) PublishExcept(ctx context.Context, group, exceptConnID, event string, payload interface{}) {
	f.deliverGroup(group, exceptConnID, event, payload)
	f.relay(ctx, relayEnvelope{Group: group, Except: exceptConnID, Event: event}, payload)
}

func (f *Fanout) SendToUser(ctx context.Context, userID, event string, payload interface{}) {
	f.deliverUser(userID, event, payload)
	f.relay(ctx, relayEnvelope{User: userID, Event: event}, payload)
}

func (f *Fanout) relay(ctx context.Context, env relayEnvelope, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("fanout payload marshal failed", zap.String("event", env.Event), zap.Error(err))
		return
	}
	env.Origin = f.instanceID
	env.Payload = data

	msg, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := f.bus.Publish(ctx, relayTopic, msg); err != nil {
		f.logger.Warn("fanout relay publish failed", zap.String("event", env.Event), zap.Error(err))
	}
}

// handleRelay delivers an event that originated on another instance.
func (f *Fanout) handleRelay(data []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.Origin == f.instanceID {
		return // already delivered locally at publish time
	}
	if env.User != "" {
		f.deliverUser(env.User, env.Event, env.Payload)
		return
	}
	f.deliverGroup(env.Group, env.Except, env.Event, env.Payload)
}

func (f *Fanout) deliverGroup(group, exceptConnID, event string, payload interface{}) {
	for _, connID := range f.subs.Members(group) {
		if connID == exceptConnID {
			continue
		}
		conn, ok := f.registry.Conn(connID)
		if !ok {
			f.subs.DropConn(connID)
			continue
		}
		f.send(conn, event, payload)
	}
}

func (f *Fanout) deliverUser(userID, event string, payload interface{}) {
	for _, conn := range f.registry.ConnectionsFor(userID) {
		f.send(conn, event, payload)
	}
}

// send writes best-effort; a connection whose transport errors is dropped
// from all groups and closed rather than retried.
func (f *Fanout) send(conn Conn, event string, payload interface{}) {
	if err := conn.Send(event, payload); err != nil {
		f.logger.Debug("dropping broken connection",
			zap.String("conn", conn.ID()), zap.String("event", event), zap.Error(err))
		f.subs.DropConn(conn.ID())
		_ = conn.Close()
	}
}
