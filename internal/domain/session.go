package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the single trusted member of a session from the rest.
type Role string

const (
	// Authority is the member the others defer to for authoritative game
	// state. There is exactly one per live session.
	Authority Role = "authority"
	// Participant is any non-Authority member.
	Participant Role = "participant"
)

const (
	minAspectRatio = 0.25
	maxAspectRatio = 4.0
	// naNAspectRatioSentinel is what an incoming NaN aspect ratio clamps to.
	naNAspectRatioSentinel = 1.0
)

// ClampAspectRatio enforces the [0.25, 4.0] bound spec'd for a session's
// aspect ratio, clamping a NaN input to a defined sentinel rather than
// rejecting it.
func ClampAspectRatio(v float64) float64 {
	if v != v { // NaN never equals itself
		return naNAspectRatioSentinel
	}
	switch {
	case v < minAspectRatio:
		return minAspectRatio
	case v > maxAspectRatio:
		return maxAspectRatio
	default:
		return v
	}
}

// Member is a single connection participating in a Session.
type Member struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	ConnectionID string
	Role         Role
	JoinedAt     time.Time
}

// Session is the authoritative record of one live lobby.
//
// promotionMu guards authority election (§5): it is deliberately a
// separate lock from whatever registry-wide mutex protects the set of
// sessions, so waiting for one session's promotion never holds that
// registry-wide mutex.
type Session struct {
	ID          uuid.UUID
	Name        string
	CreatedAt   time.Time
	AspectRatio float64
	GameStarted bool
	Version     uint64

	Members map[uuid.UUID]*Member
	Objects map[uuid.UUID]*Object

	promotionMu sync.Mutex
}

// PromotionLock returns the mutex serializing authority election for this
// session. It exists as a method (rather than exporting the field) so
// callers cannot forget which lock guards what.
func (s *Session) PromotionLock() *sync.Mutex {
	return &s.promotionMu
}

// MemberIDs returns the session's current member ids in map iteration
// order. Order is not meaningful across calls; callers that need a stable
// order (e.g. round-robin migration) must derive it once and reuse it.
func (s *Session) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Members))
	for id := range s.Members {
		ids = append(ids, id)
	}
	return ids
}

// ActiveSessionSummary is the per-session projection returned by
// ListActiveSessions.
type ActiveSessionSummary struct {
	ID          uuid.UUID
	Name        string
	MemberCount int
	MaxMembers  int
	CreatedAt   time.Time
	GameStarted bool
}

// ActiveSessionsSnapshot is the full ListActiveSessions response.
type ActiveSessionsSnapshot struct {
	Sessions         []ActiveSessionSummary
	MaxSessions      int
	CanCreateSession bool
}
