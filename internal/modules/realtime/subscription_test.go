package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionsRoundTrip(t *testing.T) {
	subs := NewSubscriptions()

	subs.Subscribe("c1", ServerGroup("s1"))
	subs.Subscribe("c1", ChannelGroup("ch1"))
	subs.Subscribe("c2", ServerGroup("s1"))

	assert.ElementsMatch(t, []string{"c1", "c2"}, subs.Members(ServerGroup("s1")))
	assert.True(t, subs.Subscribed("c1", ChannelGroup("ch1")))
	assert.False(t, subs.Subscribed("c2", ChannelGroup("ch1")))

	subs.Unsubscribe("c1", ServerGroup("s1"))
	assert.ElementsMatch(t, []string{"c2"}, subs.Members(ServerGroup("s1")))
	assert.True(t, subs.Subscribed("c1", ChannelGroup("ch1")), "other groups untouched")
}

func TestSubscriptionsSubscribeIdempotent(t *testing.T) {
	subs := NewSubscriptions()
	subs.Subscribe("c1", ServerGroup("s1"))
	subs.Subscribe("c1", ServerGroup("s1"))
	assert.Len(t, subs.Members(ServerGroup("s1")), 1)
}

func TestSubscriptionsDropConn(t *testing.T) {
	subs := NewSubscriptions()
	subs.Subscribe("c1", ServerGroup("s1"))
	subs.Subscribe("c1", ServerGroup("s2"))
	subs.Subscribe("c1", ChannelGroup("ch1"))
	subs.Subscribe("c2", ServerGroup("s1"))

	dropped := subs.DropConn("c1")
	assert.ElementsMatch(t, []string{ServerGroup("s1"), ServerGroup("s2"), ChannelGroup("ch1")}, dropped)
	assert.ElementsMatch(t, []string{"c2"}, subs.Members(ServerGroup("s1")))
	assert.Empty(t, subs.Members(ChannelGroup("ch1")))

	assert.Nil(t, subs.DropConn("c1"), "second drop is a no-op")
}
