package realtime

import (
	"context"
	"sync"

	"github.com/ctc-chat/core/internal/models"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
)

// mockConn is an in-memory Conn recording everything sent to it.
type mockConn struct {
	id string

	mu       sync.Mutex
	received []sentEvent
	closed   bool
	sendErr  error
}

type sentEvent struct {
	event   string
	payload interface{}
}

func newMockConn(id string) *mockConn { return &mockConn{id: id} }

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(event string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, sentEvent{event: event, payload: payload})
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) events(name string) []sentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEvent
	for _, e := range m.received {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// fakeMembership is a canned MembershipStore.
type fakeMembership struct {
	memberships map[string][]membership.Membership     // userID → servers
	channels    map[string]*membership.ChannelInfo     // channelID → info
	roles       map[string]models.ServerRole           // serverID+"/"+userID → role
	names       map[string]string                      // userID → display name
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		memberships: make(map[string][]membership.Membership),
		channels:    make(map[string]*membership.ChannelInfo),
		roles:       make(map[string]models.ServerRole),
		names:       make(map[string]string),
	}
}

func (f *fakeMembership) addMember(serverID, userID string, role models.ServerRole) {
	f.memberships[userID] = append(f.memberships[userID], membership.Membership{ServerID: serverID, Role: role})
	f.roles[serverID+"/"+userID] = role
}

func (f *fakeMembership) addChannel(channelID, serverID string, typ models.ChannelType) {
	f.channels[channelID] = &membership.ChannelInfo{ID: channelID, ServerID: serverID, Type: typ}
}

func (f *fakeMembership) ListServerMemberships(_ context.Context, userID string) ([]membership.Membership, error) {
	return f.memberships[userID], nil
}

func (f *fakeMembership) IsMember(_ context.Context, serverID, userID string) (bool, error) {
	_, ok := f.roles[serverID+"/"+userID]
	return ok, nil
}

func (f *fakeMembership) Role(_ context.Context, serverID, userID string) (models.ServerRole, error) {
	role, ok := f.roles[serverID+"/"+userID]
	if !ok {
		return "", membership.ErrNotFound
	}
	return role, nil
}

func (f *fakeMembership) Channel(_ context.Context, channelID string) (*membership.ChannelInfo, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return ch, nil
}

func (f *fakeMembership) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := f.names[userID]
	if !ok {
		return "", membership.ErrNotFound
	}
	return name, nil
}

// recordingPublisher captures everything the coordinator emits.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	group   string
	user    string
	except  string
	event   string
	payload interface{}
}

func (r *recordingPublisher) Publish(_ context.Context, group, event string, payload interface{}) {
	r.record(publishedEvent{group: group, event: event, payload: payload})
}

func (r *recordingPublisher) PublishExcept(_ context.Context, group, exceptConnID, event string, payload interface{}) {
	r.record(publishedEvent{group: group, except: exceptConnID, event: event, payload: payload})
}

func (r *recordingPublisher) SendToUser(_ context.Context, userID, event string, payload interface{}) {
	r.record(publishedEvent{user: userID, event: event, payload: payload})
}

func (r *recordingPublisher) record(e publishedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) all() []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]publishedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingPublisher) byEvent(name string) []publishedEvent {
	var out []publishedEvent
	for _, e := range r.all() {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingPublisher) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// fakeIssuer records credential issuance.
type fakeIssuer struct {
	mu    sync.Mutex
	calls []string // identity+"/"+room
	fail  bool
}

func (f *fakeIssuer) IssueCredential(identity, name, roomID string) (media.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return media.Credential{}, media.ErrDisabled
	}
	f.calls = append(f.calls, identity+"/"+roomID)
	return media.Credential{Token: "token-" + roomID, URL: "wss://media.test"}, nil
}
