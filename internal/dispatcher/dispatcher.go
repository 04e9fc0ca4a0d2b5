// Package dispatcher implements the Hub Dispatcher: it terminates RPCs
// from the transport, translates them into Session/Object Registry calls,
// and broadcasts the resulting events to the affected transport groups.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gamelobby/internal/domain"
	"gamelobby/internal/objects"
	"gamelobby/internal/sessions"
	"gamelobby/internal/transport"
)

func sessionGroup(id uuid.UUID) string {
	return fmt.Sprintf("session:%s", id)
}

// Dispatcher is the only component aware of the transport; the two
// Registries it wraps are pure in-memory services.
type Dispatcher struct {
	sessions  *sessions.Registry
	objects   *objects.Registry
	transport transport.Transport
	log       *logrus.Entry
}

// New constructs a Dispatcher wired to the given registries and transport.
func New(sessionRegistry *sessions.Registry, objectRegistry *objects.Registry, t transport.Transport, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{
		sessions:  sessionRegistry,
		objects:   objectRegistry,
		transport: t,
		log:       log.WithField("component", "dispatcher.Dispatcher"),
	}
}

// send is fire-and-forget from the caller's point of view: a transport
// error is logged at Warn and never rolls back registry state, per §7.
func (d *Dispatcher) send(ctx context.Context, sender transport.Sender, method string, payload any) {
	if err := sender.Send(ctx, method, payload); err != nil {
		d.log.WithError(err).WithField("method", method).Warn("dispatcher: broadcast send failed")
	}
}

func (d *Dispatcher) broadcastSessionsChanged(ctx context.Context) {
	d.send(ctx, d.transport.Clients().Group(GlobalGroup), EventSessionsChanged, nil)
}

// OnConnected implements §4.D.1's connect half: add the new connection to
// the global group so it receives session-list signals immediately.
func (d *Dispatcher) OnConnected(connectionID string) {
	d.transport.Groups().Add(connectionID, GlobalGroup)
}

// OnDisconnected implements §4.D.1's disconnect half. Any panic surfacing
// from the leave flow is logged and swallowed — a disconnect must never
// leave the registries partially cleaned up because of a handler panic.
func (d *Dispatcher) OnDisconnected(ctx context.Context, connectionID string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("connection_id", connectionID).Errorf("OnDisconnected: recovered from panic during cleanup: %v", r)
		}
	}()
	d.transport.Groups().Remove(connectionID, GlobalGroup)
	d.leaveSession(ctx, connectionID)
}

// CreateSession implements §4.D.2.
func (d *Dispatcher) CreateSession(ctx context.Context, connectionID string, aspectRatio float64) *CreateSessionResponse {
	result, err := d.sessions.CreateSession(connectionID, aspectRatio)
	if err != nil {
		return nil
	}

	d.transport.Groups().Add(connectionID, sessionGroup(result.SessionID))
	d.broadcastSessionsChanged(ctx)

	return &CreateSessionResponse{
		SessionID:   result.SessionID,
		SessionName: result.SessionName,
		MemberID:    result.Member.ID,
		Role:        result.Member.Role,
		AspectRatio: result.AspectRatio,
	}
}

// JoinSession implements §4.D.3.
func (d *Dispatcher) JoinSession(ctx context.Context, connectionID string, sessionID uuid.UUID) *JoinSnapshot {
	result, err := d.sessions.JoinSession(sessionID, connectionID)
	if err != nil {
		return nil
	}

	group := sessionGroup(result.SessionID)
	d.transport.Groups().Add(connectionID, group)

	d.send(ctx, d.transport.Clients().OthersInGroup(group, connectionID), EventMemberJoined, map[string]any{
		"memberId": result.Member.ID,
		"role":     result.Member.Role,
		"joinedAt": result.Member.JoinedAt,
	})
	d.broadcastSessionsChanged(ctx)

	return buildJoinSnapshot(result, d.objects.ListSessionObjects(result.SessionID))
}

// LeaveSession implements §4.D.4, invoked by an explicit client request.
func (d *Dispatcher) LeaveSession(ctx context.Context, connectionID string) {
	d.leaveSession(ctx, connectionID)
}

// leaveSession is the shared implementation behind both the LeaveSession
// RPC and transport disconnect cleanup (§4.D.1, §4.D.4). Ordering matches
// §5's guarantee: OnMemberLeft, then per-type OnObjectTypeEmpty, then
// OnSessionsChanged.
func (d *Dispatcher) leaveSession(ctx context.Context, connectionID string) {
	result, err := d.sessions.LeaveSession(connectionID)
	if err != nil {
		return
	}

	group := sessionGroup(result.SessionID)

	var objResult *objects.DepartureResult
	if result.SessionDestroyed {
		objResult = d.objects.HandleMemberDeparture(result.SessionID, result.MemberID, nil)
		d.objects.CleanupSession(result.SessionID)
	} else {
		objResult = d.objects.HandleMemberDeparture(result.SessionID, result.MemberID, result.RemainingMemberIDs)
	}

	d.transport.Groups().Remove(connectionID, group)

	if !result.SessionDestroyed {
		payload := map[string]any{
			"memberId":         result.MemberID,
			"deletedObjectIds": objResult.DeletedIDs,
			"migrations":       objResult.Migrations,
		}
		if result.PromotedMemberID != nil {
			payload["promotedMemberId"] = *result.PromotedMemberID
			payload["promotedRole"] = domain.Authority
		}
		d.send(ctx, d.transport.Clients().Group(group), EventMemberLeft, payload)

		for _, t := range objResult.AffectedTypes {
			if d.objects.CountByType(result.SessionID, t) == 0 {
				d.send(ctx, d.transport.Clients().Group(group), EventObjectTypeEmpty, map[string]any{"type": t})
			}
		}
	}

	d.broadcastSessionsChanged(ctx)
}

// StartGame implements §4.D.5.
func (d *Dispatcher) StartGame(ctx context.Context, connectionID string) bool {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return false
	}
	if member.Role != domain.Authority {
		return false
	}
	session, err := d.sessions.MarkGameStarted(member.SessionID)
	if err != nil {
		return false
	}

	group := sessionGroup(session.ID)
	d.send(ctx, d.transport.Clients().Group(group), EventGameStarted, map[string]any{"sessionId": session.ID})
	d.broadcastSessionsChanged(ctx)
	return true
}

// CreateObject implements the create half of §4.D.6.
func (d *Dispatcher) CreateObject(ctx context.Context, connectionID string, scope domain.Scope, data map[string]any) *ObjectInfo {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return nil
	}
	obj := d.objects.CreateObject(member.SessionID, member.ID, scope, data, nil)
	if obj == nil {
		return nil
	}

	group := sessionGroup(member.SessionID)
	info := objectInfo(obj)
	d.send(ctx, d.transport.Clients().Group(group), EventObjectCreated, info)

	if t := obj.TypeOf(); t != "" && d.objects.CountByType(member.SessionID, t) == 1 {
		d.send(ctx, d.transport.Clients().Group(group), EventObjectTypeRestored, map[string]any{"type": t})
	}
	return &info
}

// UpdateObjects implements the batch-update half of §4.D.6.
func (d *Dispatcher) UpdateObjects(ctx context.Context, connectionID string, patches []objects.Patch) []ObjectInfo {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return nil
	}
	updated := d.objects.UpdateObjects(member.SessionID, patches)
	if len(updated) == 0 {
		return nil
	}

	infos := make([]ObjectInfo, len(updated))
	for i, o := range updated {
		infos[i] = objectInfo(o)
	}
	d.send(ctx, d.transport.Clients().Group(sessionGroup(member.SessionID)), EventObjectsUpdated, infos)
	return infos
}

// DeleteObject implements the delete half of §4.D.6.
func (d *Dispatcher) DeleteObject(ctx context.Context, connectionID string, objectID uuid.UUID) bool {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return false
	}
	obj := d.objects.DeleteObject(member.SessionID, objectID)
	if obj == nil {
		return false
	}

	group := sessionGroup(member.SessionID)
	d.send(ctx, d.transport.Clients().Group(group), EventObjectDeleted, map[string]any{"objectId": objectID})

	if t := obj.TypeOf(); t != "" && d.objects.CountByType(member.SessionID, t) == 0 {
		d.send(ctx, d.transport.Clients().Group(group), EventObjectTypeEmpty, map[string]any{"type": t})
	}
	return true
}

// Relay implements §4.D.7: the five opaque game-logic messages. No
// registry state changes; the payload is broadcast verbatim with the
// reporter's member id appended.
func (d *Dispatcher) Relay(ctx context.Context, connectionID string, rpc string, payload map[string]any) bool {
	member, ok := d.sessions.GetMemberByConnection(connectionID)
	if !ok {
		return false
	}
	event, ok := relayEvents[rpc]
	if !ok {
		d.log.WithField("rpc", rpc).Error("Relay: unknown relay RPC")
		return false
	}

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["reporterMemberId"] = member.ID

	d.send(ctx, d.transport.Clients().Group(sessionGroup(member.SessionID)), event, out)
	return true
}

// GetActiveSessions implements §4.D.8.
func (d *Dispatcher) GetActiveSessions() domain.ActiveSessionsSnapshot {
	return d.sessions.ListActiveSessions()
}
