package wsrpc

import (
	"context"

	"github.com/sirupsen/logrus"

	"gamelobby/internal/dispatcher"
)

// Incoming RPC method names, matched against envelope.Method.
const (
	rpcCreateSession     = "CreateSession"
	rpcJoinSession       = "JoinSession"
	rpcLeaveSession      = "LeaveSession"
	rpcStartGame         = "StartGame"
	rpcCreateObject      = "CreateObject"
	rpcUpdateObjects     = "UpdateObjects"
	rpcDeleteObject      = "DeleteObject"
	rpcGetActiveSessions = "GetActiveSessions"
)

// relayRPCs is the set of opaque game-logic RPCs forwarded through
// Dispatcher.Relay rather than having their own handler branch.
var relayRPCs = map[string]struct{}{
	dispatcher.RPCReportBulletHit:  {},
	dispatcher.RPCConfirmBulletHit: {},
	dispatcher.RPCRejectBulletHit:  {},
	dispatcher.RPCReportShipHit:    {},
	dispatcher.RPCReportScore:      {},
}

// handleIncoming decodes one frame and routes it to the Dispatcher,
// mirroring the teacher's handler.HandleMessage switch on message type.
// The result, if any, is sent back to the calling connection alone as a
// response envelope sharing the request's method name.
func (s *Server) handleIncoming(c *conn, raw []byte) {
	var env envelope
	if err := s.codec.Unmarshal(raw, &env); err != nil {
		s.replyError(c, "", "malformed envelope")
		return
	}

	ctx := context.Background()
	log := s.log.WithField("connection_id", c.id)

	if _, ok := relayRPCs[env.Method]; ok {
		var req relayRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		ok := s.dispatcher.Relay(ctx, c.id, env.Method, req.Payload)
		s.reply(c, env.Method, map[string]any{"ok": ok})
		return
	}

	switch env.Method {
	case rpcCreateSession:
		var req createSessionRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		resp := s.dispatcher.CreateSession(ctx, c.id, req.AspectRatio)
		if resp == nil {
			s.replyError(c, env.Method, "could not create session")
			return
		}
		s.reply(c, env.Method, resp)

	case rpcJoinSession:
		var req joinSessionRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		snapshot := s.dispatcher.JoinSession(ctx, c.id, req.SessionID)
		if snapshot == nil {
			s.replyError(c, env.Method, "could not join session")
			return
		}
		s.reply(c, env.Method, snapshot)

	case rpcLeaveSession:
		s.dispatcher.LeaveSession(ctx, c.id)
		s.reply(c, env.Method, map[string]any{"ok": true})

	case rpcStartGame:
		ok := s.dispatcher.StartGame(ctx, c.id)
		s.reply(c, env.Method, map[string]any{"ok": ok})

	case rpcCreateObject:
		var req createObjectRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		info := s.dispatcher.CreateObject(ctx, c.id, req.Scope, req.Data)
		if info == nil {
			s.replyError(c, env.Method, "could not create object")
			return
		}
		s.reply(c, env.Method, info)

	case rpcUpdateObjects:
		var req updateObjectsRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		infos := s.dispatcher.UpdateObjects(ctx, c.id, req.toPatches())
		s.reply(c, env.Method, infos)

	case rpcDeleteObject:
		var req deleteObjectRequest
		if err := s.decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, env.Method, "malformed payload")
			return
		}
		ok := s.dispatcher.DeleteObject(ctx, c.id, req.ObjectID)
		s.reply(c, env.Method, map[string]any{"ok": ok})

	case rpcGetActiveSessions:
		s.reply(c, env.Method, s.dispatcher.GetActiveSessions())

	default:
		log.WithField("method", env.Method).Warn("wsrpc: unknown RPC method")
		s.replyError(c, env.Method, "unknown method")
	}
}

// decodePayload re-marshals an already-decoded any (the envelope's
// Payload field) into a concrete request struct. sonic decodes Payload
// as map[string]any on the first pass, so a second marshal/unmarshal
// round trip is the cheapest way to land it in a typed struct.
func (s *Server) decodePayload(payload any, out any) error {
	if payload == nil {
		return nil
	}
	raw, err := s.codec.Marshal(payload)
	if err != nil {
		return err
	}
	return s.codec.Unmarshal(raw, out)
}

func (s *Server) reply(c *conn, method string, payload any) {
	frame, err := s.codec.Marshal(envelope{Method: method, Payload: payload})
	if err != nil {
		s.log.WithError(err).WithField("method", method).Error("wsrpc: failed to marshal reply")
		return
	}
	if !c.enqueue(frame) {
		s.log.WithFields(logrus.Fields{"connection_id": c.id, "method": method}).Warn("wsrpc: reply dropped, send channel full")
	}
}

func (s *Server) replyError(c *conn, method, message string) {
	s.reply(c, method, errorResponse{Error: message})
}
