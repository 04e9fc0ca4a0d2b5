package wsrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSender_SendReachesEveryMemberOfTheGroup(t *testing.T) {
	s := newTestServer()
	a := newConnFor(s, "a")
	b := newConnFor(s, "b")
	s.Groups().Add("a", "room")
	s.Groups().Add("b", "room")

	require.NoError(t, s.Clients().Group("room").Send(context.Background(), "Ping", nil))

	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, b), 1)
}

func TestGroupSender_OthersInGroupExcludesTheGivenConnection(t *testing.T) {
	s := newTestServer()
	a := newConnFor(s, "a")
	b := newConnFor(s, "b")
	s.Groups().Add("a", "room")
	s.Groups().Add("b", "room")

	require.NoError(t, s.Clients().OthersInGroup("room", "a").Send(context.Background(), "Ping", nil))

	assert.Empty(t, drain(t, a))
	assert.Len(t, drain(t, b), 1)
}

func TestGroupsRemove_StopsFutureDelivery(t *testing.T) {
	s := newTestServer()
	a := newConnFor(s, "a")
	s.Groups().Add("a", "room")
	s.Groups().Remove("a", "room")

	require.NoError(t, s.Clients().Group("room").Send(context.Background(), "Ping", nil))

	assert.Empty(t, drain(t, a))
}

func TestHandleDisconnect_RemovesConnectionFromEveryGroup(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "a")
	s.Groups().Add("a", "room-1")
	s.Groups().Add("a", "room-2")

	s.handleDisconnect(c)

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, stillPresent := s.conns["a"]
	assert.False(t, stillPresent)
	for group, members := range s.groups {
		_, ok := members["a"]
		assert.Falsef(t, ok, "connection a still present in group %s", group)
	}
}
