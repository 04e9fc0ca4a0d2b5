// Package sessions implements the Session Registry: session lifecycle,
// membership, unique naming, and authority election.
package sessions

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gamelobby/internal/config"
	"gamelobby/internal/domain"
	"gamelobby/internal/naming"
)

// Registry is the authoritative, in-memory store of live sessions and
// members. All registry-wide mutations serialize on mu, mirroring the
// teacher's hub.rooms/roomsMu pattern generalized to a full session/member
// model with the two reverse indexes spec §3 requires.
type Registry struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*domain.Session
	byName   map[string]uuid.UUID

	// connIndex and memberIndex are the two authoritative reverse lookups
	// spec §3 calls out: connectionID -> memberID, memberID -> sessionID.
	connIndex   map[string]uuid.UUID
	memberIndex map[uuid.UUID]uuid.UUID

	pool *naming.Pool
	opts config.Options
	log  *logrus.Entry
}

// New constructs an empty Registry.
func New(opts config.Options, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		sessions:    make(map[uuid.UUID]*domain.Session),
		byName:      make(map[string]uuid.UUID),
		connIndex:   make(map[string]uuid.UUID),
		memberIndex: make(map[uuid.UUID]uuid.UUID),
		pool:        naming.New(),
		opts:        opts,
		log:         log.WithField("component", "sessions.Registry"),
	}
}

// DepartureResult is returned by LeaveSession, describing what happened.
type DepartureResult struct {
	SessionID        uuid.UUID
	SessionName      string
	MemberID         uuid.UUID
	SessionDestroyed bool
	PromotedMemberID *uuid.UUID
	// RemainingMemberIDs is the post-leave membership, empty if the
	// session was destroyed. The Object Registry's HandleMemberDeparture
	// consumes this directly (§4.D.4 step 2-3).
	RemainingMemberIDs []uuid.UUID
}

// activeSessionCount returns the number of sessions with at least one
// member. Callers must hold mu.
func (r *Registry) activeSessionCount() int {
	n := 0
	for _, s := range r.sessions {
		if len(s.Members) > 0 {
			n++
		}
	}
	return n
}

func (r *Registry) usedNames() map[string]struct{} {
	used := make(map[string]struct{}, len(r.byName))
	for name := range r.byName {
		used[name] = struct{}{}
	}
	return used
}

// CreateResult is returned by CreateSession: the session's scalar fields
// and the new member, copied out while r.mu is held so callers never hold
// a pointer into the live Session/Member the registry keeps mutating.
type CreateResult struct {
	SessionID   uuid.UUID
	SessionName string
	AspectRatio float64
	Member      domain.Member
}

// CreateSession implements §4.B.1.
func (r *Registry) CreateSession(connectionID string, aspectRatio float64) (*CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logCtx := r.log.WithField("connection_id", connectionID)

	if _, bound := r.connIndex[connectionID]; bound {
		logCtx.Warn("CreateSession: connection already bound to a session")
		return nil, domain.ErrAlreadyInSession
	}
	if r.activeSessionCount() >= r.opts.MaxSessions {
		logCtx.Warn("CreateSession: capacity reached")
		return nil, domain.ErrCapacityReached
	}

	name := r.pool.Allocate(r.usedNames())
	now := time.Now()

	session := &domain.Session{
		ID:          uuid.New(),
		Name:        name,
		CreatedAt:   now,
		AspectRatio: domain.ClampAspectRatio(aspectRatio),
		GameStarted: false,
		Version:     1,
		Members:     make(map[uuid.UUID]*domain.Member),
		Objects:     make(map[uuid.UUID]*domain.Object),
	}
	member := &domain.Member{
		ID:           uuid.New(),
		SessionID:    session.ID,
		ConnectionID: connectionID,
		Role:         domain.Authority,
		JoinedAt:     now,
	}
	session.Members[member.ID] = member

	r.sessions[session.ID] = session
	r.byName[session.Name] = session.ID
	r.connIndex[connectionID] = member.ID
	r.memberIndex[member.ID] = session.ID

	logCtx.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"session_name": session.Name,
		"member_id":    member.ID,
	}).Info("CreateSession: session created")

	return &CreateResult{
		SessionID:   session.ID,
		SessionName: session.Name,
		AspectRatio: session.AspectRatio,
		Member:      *member,
	}, nil
}

// JoinResult is returned by JoinSession: the session's scalar fields, the
// new member, and a snapshot of every member currently in the session
// (including the new one) — all copied out under r.mu so the caller never
// ranges the live Members map itself, which a concurrent JoinSession,
// LeaveSession, or promotion on the same session is free to mutate.
type JoinResult struct {
	SessionID   uuid.UUID
	SessionName string
	AspectRatio float64
	GameStarted bool
	Member      domain.Member
	Members     []domain.Member
}

// JoinSession implements §4.B.2.
func (r *Registry) JoinSession(sessionID uuid.UUID, connectionID string) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logCtx := r.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"session_id":    sessionID,
	})

	if _, bound := r.connIndex[connectionID]; bound {
		logCtx.Warn("JoinSession: connection already bound to a session")
		return nil, domain.ErrAlreadyInSession
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		logCtx.Warn("JoinSession: session not found")
		return nil, domain.ErrNotFound
	}
	if len(session.Members) >= r.opts.MaxMembersPerSession {
		logCtx.Warn("JoinSession: session full")
		return nil, domain.ErrSessionFull
	}

	member := &domain.Member{
		ID:           uuid.New(),
		SessionID:    session.ID,
		ConnectionID: connectionID,
		Role:         domain.Participant,
		JoinedAt:     time.Now(),
	}
	session.Members[member.ID] = member
	r.connIndex[connectionID] = member.ID
	r.memberIndex[member.ID] = session.ID

	logCtx.WithField("member_id", member.ID).Info("JoinSession: member joined")

	members := make([]domain.Member, 0, len(session.Members))
	for _, m := range session.Members {
		members = append(members, *m)
	}

	return &JoinResult{
		SessionID:   session.ID,
		SessionName: session.Name,
		AspectRatio: session.AspectRatio,
		GameStarted: session.GameStarted,
		Member:      *member,
		Members:     members,
	}, nil
}

// LeaveSession implements §4.B.3. Idempotent: a connection already removed
// from the indexes (e.g. a client-initiated LeaveSession immediately
// followed by a transport-level disconnect callback) returns ErrNotFound
// and performs no further work, per the re-entrancy note in spec §9.
func (r *Registry) LeaveSession(connectionID string) (*DepartureResult, error) {
	r.mu.Lock()

	memberID, ok := r.connIndex[connectionID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	sessionID, ok := r.memberIndex[memberID]
	if !ok {
		// Defensive: connIndex and memberIndex diverged. Should never
		// happen; log loudly but still clean up what we can.
		r.log.WithField("member_id", memberID).Error("LeaveSession: memberIndex missing entry present in connIndex")
		delete(r.connIndex, connectionID)
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		r.log.WithField("session_id", sessionID).Error("LeaveSession: session missing for indexed member")
		delete(r.connIndex, connectionID)
		delete(r.memberIndex, memberID)
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}

	// Step 1: this delete is the linearisation point for "is this member
	// still in the session?" — any concurrent LeaveSession for the same
	// connectionID beyond this point observes connIndex as empty.
	delete(r.connIndex, connectionID)
	delete(r.memberIndex, memberID)

	departing, ok := session.Members[memberID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	delete(session.Members, memberID)

	result := &DepartureResult{
		SessionID:   session.ID,
		SessionName: session.Name,
		MemberID:    memberID,
	}

	wasAuthority := departing.Role == domain.Authority
	remainingAfterRemoval := len(session.Members)
	// r.mu is released here; the election below first takes this session's
	// promotionLock without holding r.mu, so waiting on another promotion
	// never holds the registry mutex. r.mu is then re-acquired for the
	// check-and-promote step itself (hasAuthority, the random pick, the
	// Role and Version writes), because Members is only safe to touch
	// under r.mu against a concurrent JoinSession on this same session.
	r.mu.Unlock()

	if wasAuthority && remainingAfterRemoval > 0 {
		promotionLock := session.PromotionLock()
		promotionLock.Lock()
		r.mu.Lock()
		if !hasAuthority(session) && len(session.Members) > 0 {
			promoted := pickRandomMember(session)
			promoted.Role = domain.Authority
			session.Version++
			result.PromotedMemberID = &promoted.ID
			r.log.WithFields(logrus.Fields{
				"session_id": session.ID,
				"member_id":  promoted.ID,
			}).Info("LeaveSession: promoted new authority")
		}
		r.mu.Unlock()
		promotionLock.Unlock()
	}

	r.mu.Lock()
	if len(session.Members) == 0 {
		delete(r.sessions, session.ID)
		delete(r.byName, session.Name)
		result.SessionDestroyed = true
	} else {
		result.RemainingMemberIDs = session.MemberIDs()
	}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"session_id":        result.SessionID,
		"member_id":         result.MemberID,
		"session_destroyed": result.SessionDestroyed,
	}).Info("LeaveSession: member left")

	return result, nil
}

func hasAuthority(s *domain.Session) bool {
	for _, m := range s.Members {
		if m.Role == domain.Authority {
			return true
		}
	}
	return false
}

func pickRandomMember(s *domain.Session) *domain.Member {
	ids := s.MemberIDs()
	return s.Members[ids[rand.IntN(len(ids))]]
}

// GetSession returns a session by id.
func (r *Registry) GetSession(id uuid.UUID) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetMemberByConnection resolves a live connection to its member. The
// returned Member is a copy taken under r.mu: Role can be rewritten by a
// concurrent promotion, so callers must never be handed the live pointer.
func (r *Registry) GetMemberByConnection(connectionID string) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return domain.Member{}, false
	}
	sessionID, ok := r.memberIndex[memberID]
	if !ok {
		return domain.Member{}, false
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Member{}, false
	}
	member, ok := session.Members[memberID]
	if !ok {
		return domain.Member{}, false
	}
	return *member, true
}

// GetSessionByConnection resolves a live connection to its session.
func (r *Registry) GetSessionByConnection(connectionID string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	memberID, ok := r.connIndex[connectionID]
	if !ok {
		return nil, false
	}
	sessionID, ok := r.memberIndex[memberID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[sessionID]
	return s, ok
}

// ListActiveSessions implements §4.B.4.
func (r *Registry) ListActiveSessions() domain.ActiveSessionsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]domain.ActiveSessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		if len(s.Members) == 0 {
			continue
		}
		summaries = append(summaries, domain.ActiveSessionSummary{
			ID:          s.ID,
			Name:        s.Name,
			MemberCount: len(s.Members),
			MaxMembers:  r.opts.MaxMembersPerSession,
			CreatedAt:   s.CreatedAt,
			GameStarted: s.GameStarted,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	active := len(summaries)
	return domain.ActiveSessionsSnapshot{
		Sessions:         summaries,
		MaxSessions:      r.opts.MaxSessions,
		CanCreateSession: active < r.opts.MaxSessions,
	}
}

// IsMember reports whether memberID is a live member of sessionID. The
// Object Registry uses this instead of touching Session.Members directly,
// since that map is only safe to read under this Registry's own lock.
func (r *Registry) IsMember(sessionID, memberID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	_, ok = session.Members[memberID]
	return ok
}

// MarkGameStarted sets GameStarted on a session if it hasn't started yet;
// it performs no authority check of its own. It's exposed here (rather than only
// in the Dispatcher) because GameStarted is session state the Registry
// owns; the Dispatcher (§4.D.5) is responsible for the authority check
// against the caller's connection and for emitting events.
func (r *Registry) MarkGameStarted(sessionID uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if session.GameStarted {
		return nil, domain.ErrAlreadyStarted
	}
	session.GameStarted = true
	return session, nil
}
