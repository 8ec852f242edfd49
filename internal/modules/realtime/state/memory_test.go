package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedStore(presenceTTL, typingTTL time.Duration) (*MemoryStore, *time.Time) {
	s := NewMemoryStore(presenceTTL, typingTTL)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	return s, &now
}

func TestMemoryStorePresenceLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	status, err := s.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status)

	require.NoError(t, s.SetOnline(ctx, "u1"))
	status, err = s.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, status)

	require.NoError(t, s.SetOffline(ctx, "u1"))
	status, err = s.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status)
}

func TestMemoryStorePresenceExpiresWithoutHeartbeat(t *testing.T) {
	ctx := context.Background()
	s, now := newClockedStore(300*time.Second, 10*time.Second)

	require.NoError(t, s.SetOnline(ctx, "u1"))

	*now = now.Add(299 * time.Second)
	require.NoError(t, s.RefreshPresence(ctx, "u1"))
	*now = now.Add(299 * time.Second)
	status, err := s.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, status, "refresh pushed the expiry out")

	*now = now.Add(301 * time.Second)
	status, err = s.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status, "TTL is the backstop for missed disconnects")
}

func TestMemoryStoreRefreshUnknownUserIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	require.NoError(t, s.RefreshPresence(ctx, "u-ghost"))
	status, err := s.Status(ctx, "u-ghost")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status, "a refresh never resurrects an offline user")
}

func TestMemoryStoreJoinVoiceReturnsPreviousRoom(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	prev, err := s.JoinVoice(ctx, "room-a", "u1", Participant{Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.JoinVoice(ctx, "room-b", "u1", Participant{Username: "alice", Muted: true})
	require.NoError(t, err)
	assert.Equal(t, "room-a", prev)

	room, err := s.VoiceRoomOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "room-b", room)

	a, err := s.VoiceParticipants(ctx, "room-a")
	require.NoError(t, err)
	assert.Empty(t, a, "the swap vacated the old room hash")

	b, err := s.VoiceParticipants(ctx, "room-b")
	require.NoError(t, err)
	require.Contains(t, b, "u1")
	assert.True(t, b["u1"].Muted)
}

func TestMemoryStoreLeaveVoice(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	_, err := s.JoinVoice(ctx, "room-a", "u1", Participant{Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, s.LeaveVoice(ctx, "room-a", "u1"))

	room, err := s.VoiceRoomOf(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, room)

	require.NoError(t, s.LeaveVoice(ctx, "room-a", "u1"), "leave is idempotent")
}

func TestMemoryStoreUpdateVoiceOnlyTouchesPresentParticipants(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	require.NoError(t, s.UpdateVoice(ctx, "room-a", "u1", Participant{Username: "alice", Muted: true}))
	participants, err := s.VoiceParticipants(ctx, "room-a")
	require.NoError(t, err)
	assert.Empty(t, participants, "update never implicitly joins")

	_, err = s.JoinVoice(ctx, "room-a", "u1", Participant{Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateVoice(ctx, "room-a", "u1", Participant{Username: "alice", Deafened: true}))
	participants, err = s.VoiceParticipants(ctx, "room-a")
	require.NoError(t, err)
	assert.True(t, participants["u1"].Deafened)
}

func TestMemoryStoreTypingExpires(t *testing.T) {
	ctx := context.Background()
	s, now := newClockedStore(300*time.Second, 10*time.Second)

	require.NoError(t, s.SetTyping(ctx, "ch1", "u1", "alice"))
	require.NoError(t, s.SetTyping(ctx, "ch1", "u2", "bob"))

	typing, err := s.TypingUsers(ctx, "ch1")
	require.NoError(t, err)
	assert.Len(t, typing, 2)

	*now = now.Add(5 * time.Second)
	require.NoError(t, s.SetTyping(ctx, "ch1", "u2", "bob"))

	*now = now.Add(6 * time.Second)
	typing, err = s.TypingUsers(ctx, "ch1")
	require.NoError(t, err)
	assert.NotContains(t, typing, "u1", "stale indicator expired")
	assert.Contains(t, typing, "u2", "re-typing extended the slot")

	*now = now.Add(11 * time.Second)
	typing, err = s.TypingUsers(ctx, "ch1")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestMemoryStoreClearTyping(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(300*time.Second, 10*time.Second)

	require.NoError(t, s.SetTyping(ctx, "ch1", "u1", "alice"))
	require.NoError(t, s.ClearTyping(ctx, "ch1", "u1"))

	typing, err := s.TypingUsers(ctx, "ch1")
	require.NoError(t, err)
	assert.Empty(t, typing)

	require.NoError(t, s.ClearTyping(ctx, "ch1", "u1"), "clear is idempotent")
}
