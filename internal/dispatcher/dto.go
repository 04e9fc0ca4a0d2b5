package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"gamelobby/internal/domain"
	"gamelobby/internal/sessions"
)

// ObjectInfo is the wire-shaped projection of a domain.Object sent in RPC
// responses and broadcast events.
type ObjectInfo struct {
	ID              uuid.UUID       `json:"id"`
	SessionID       uuid.UUID       `json:"sessionId"`
	CreatorMemberID uuid.UUID       `json:"creatorMemberId"`
	OwnerMemberID   uuid.UUID       `json:"ownerMemberId"`
	Scope           domain.Scope    `json:"scope"`
	Data            map[string]any  `json:"data"`
	Version         uint64          `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func objectInfo(o *domain.Object) ObjectInfo {
	return ObjectInfo{
		ID:              o.ID,
		SessionID:       o.SessionID,
		CreatorMemberID: o.CreatorMemberID,
		OwnerMemberID:   o.OwnerMemberID,
		Scope:           o.Scope,
		Data:            o.Data,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// MemberInfo is the wire-shaped projection of a domain.Member.
type MemberInfo struct {
	ID       uuid.UUID   `json:"id"`
	Role     domain.Role `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
}

func memberInfo(m *domain.Member) MemberInfo {
	return MemberInfo{ID: m.ID, Role: m.Role, JoinedAt: m.JoinedAt}
}

// CreateSessionResponse is returned by a successful CreateSession RPC.
type CreateSessionResponse struct {
	SessionID   uuid.UUID   `json:"sessionId"`
	SessionName string      `json:"sessionName"`
	MemberID    uuid.UUID   `json:"memberId"`
	Role        domain.Role `json:"role"`
	AspectRatio float64     `json:"aspectRatio"`
}

// JoinSnapshot is returned by a successful JoinSession RPC: everything the
// joining client needs to render the current state of the session.
type JoinSnapshot struct {
	SessionID   uuid.UUID    `json:"sessionId"`
	SessionName string       `json:"sessionName"`
	MemberID    uuid.UUID    `json:"memberId"`
	Role        domain.Role  `json:"role"`
	Members     []MemberInfo `json:"members"`
	Objects     []ObjectInfo `json:"objects"`
	AspectRatio float64      `json:"aspectRatio"`
	GameStarted bool         `json:"gameStarted"`
}

// buildJoinSnapshot renders a sessions.JoinResult (already a lock-free
// snapshot copied out of the registry) into the wire shape. It never
// touches a live domain.Session/domain.Member, so it is safe to call after
// the registry's lock has been released.
func buildJoinSnapshot(result *sessions.JoinResult, objs []*domain.Object) *JoinSnapshot {
	members := make([]MemberInfo, 0, len(result.Members))
	for _, m := range result.Members {
		members = append(members, memberInfo(&m))
	}
	objectInfos := make([]ObjectInfo, 0, len(objs))
	for _, o := range objs {
		objectInfos = append(objectInfos, objectInfo(o))
	}
	return &JoinSnapshot{
		SessionID:   result.SessionID,
		SessionName: result.SessionName,
		MemberID:    result.Member.ID,
		Role:        result.Member.Role,
		Members:     members,
		Objects:     objectInfos,
		AspectRatio: result.AspectRatio,
		GameStarted: result.GameStarted,
	}
}
