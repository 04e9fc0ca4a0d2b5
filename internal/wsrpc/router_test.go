package wsrpc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamelobby/internal/codec"
	"gamelobby/internal/config"
	"gamelobby/internal/dispatcher"
	"gamelobby/internal/objects"
	"gamelobby/internal/sessions"
)

// drain pulls every frame currently queued on a connection's send channel
// and decodes each one back into an envelope for assertions.
func drain(t *testing.T, c *conn) []envelope {
	t.Helper()
	var out []envelope
	for {
		select {
		case frame := <-c.send:
			var env envelope
			require.NoError(t, codec.JSON{}.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func newTestServer() *Server {
	opts := config.Default()
	sessionRegistry := sessions.New(opts, nil)
	objectRegistry := objects.New(opts, sessionRegistry, nil)
	s := NewServer(nil, nil, nil)
	d := dispatcher.New(sessionRegistry, objectRegistry, s, nil)
	s.SetDispatcher(d)
	return s
}

func newConnFor(s *Server, id string) *conn {
	c := newConn(id, nil, s)
	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	return c
}

func marshalEnvelope(t *testing.T, method string, payload any) []byte {
	t.Helper()
	data, err := codec.JSON{}.Marshal(envelope{Method: method, Payload: payload})
	require.NoError(t, err)
	return data
}

func TestHandleIncoming_CreateSessionRepliesWithSnapshot(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "conn-1")

	s.handleIncoming(c, marshalEnvelope(t, rpcCreateSession, createSessionRequest{AspectRatio: 1.5}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, rpcCreateSession, frames[0].Method)
}

func TestHandleIncoming_UnknownMethodRepliesWithError(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "conn-1")

	s.handleIncoming(c, marshalEnvelope(t, "NotARealMethod", nil))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "NotARealMethod", frames[0].Method)
}

func TestHandleIncoming_JoinSessionBeforeCreateFails(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "conn-1")

	s.handleIncoming(c, marshalEnvelope(t, rpcJoinSession, joinSessionRequest{SessionID: uuid.New()}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, rpcJoinSession, frames[0].Method)
}

func TestHandleIncoming_RelayRPCIsForwarded(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "conn-1")
	s.handleIncoming(c, marshalEnvelope(t, rpcCreateSession, createSessionRequest{AspectRatio: 1}))
	drain(t, c)

	s.handleIncoming(c, marshalEnvelope(t, "ReportScore", relayRequest{Payload: map[string]any{"score": 42}}))

	// The caller is a member of its own session group, so it receives the
	// relayed broadcast first and then the RPC's own reply.
	frames := drain(t, c)
	require.Len(t, frames, 2)
	assert.Equal(t, dispatcher.EventScoreReported, frames[0].Method)
	assert.Equal(t, "ReportScore", frames[1].Method)
}

func TestHandleIncoming_MalformedEnvelopeRepliesWithError(t *testing.T) {
	s := newTestServer()
	c := newConnFor(s, "conn-1")

	s.handleIncoming(c, []byte("not json"))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "", frames[0].Method)
}
