package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultiDevice(t *testing.T) {
	reg := NewRegistry()
	alice := Identity{UserID: "u-alice", Username: "alice"}

	reg.Register(alice, newMockConn("c1"))
	reg.Register(alice, newMockConn("c2"))

	assert.True(t, reg.Online("u-alice"))
	assert.Len(t, reg.ConnectionsFor("u-alice"), 2)
	assert.Equal(t, 2, reg.Count())

	_, last, ok := reg.Unregister("c1")
	require.True(t, ok)
	assert.False(t, last, "one connection still open")
	assert.True(t, reg.Online("u-alice"))

	identity, last, ok := reg.Unregister("c2")
	require.True(t, ok)
	assert.True(t, last)
	assert.Equal(t, alice, identity)
	assert.False(t, reg.Online("u-alice"))
	assert.Zero(t, reg.Count())
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Identity{UserID: "u1"}, newMockConn("c1"))

	_, _, ok := reg.Unregister("c1")
	require.True(t, ok)
	_, _, ok = reg.Unregister("c1")
	assert.False(t, ok)
	_, _, ok = reg.Unregister("never-seen")
	assert.False(t, ok)
}

func TestRegistryReusedIDReplacesStaleEntry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Identity{UserID: "u1"}, newMockConn("c1"))
	reg.Register(Identity{UserID: "u2"}, newMockConn("c1"))

	assert.Equal(t, 1, reg.Count())
	assert.False(t, reg.Online("u1"), "stale owner released")
	assert.True(t, reg.Online("u2"))

	identity, ok := reg.IdentityOf("c1")
	require.True(t, ok)
	assert.Equal(t, "u2", identity.UserID)
}

func TestRegistryAlive(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Alive("c1"))
	reg.Register(Identity{UserID: "u1"}, newMockConn("c1"))
	assert.True(t, reg.Alive("c1"))
	reg.Unregister("c1")
	assert.False(t, reg.Alive("c1"))
}
