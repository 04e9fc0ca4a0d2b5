package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scope controls what triggers an Object's destruction or migration when
// its owner departs.
type Scope string

const (
	// PerMember objects are deleted outright when their owner leaves.
	PerMember Scope = "per_member"
	// PerSession objects survive their owner's departure; ownership
	// migrates to a remaining member instead.
	PerSession Scope = "per_session"
)

// TypeKey is the special Data key the Object Registry indexes on.
const TypeKey = "type"

// Object is a piece of state shared between the members of a session.
//
// mu is held, together with the Object Registry's exclusive lock, across
// the read-check-mutate-reindex sequence UpdateObject performs; that is
// what makes the optimistic-concurrency check in §4.C.2 behave like a
// compare-and-swap on Version.
type Object struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	CreatorMemberID uuid.UUID
	OwnerMemberID   uuid.UUID
	Scope           Scope
	Data            map[string]any
	Version         uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	mu sync.Mutex
}

// Lock exposes the object's per-object mutex to the Object Registry. Kept
// as a method rather than an exported field for the same reason as
// Session.PromotionLock.
func (o *Object) Lock() *sync.Mutex {
	return &o.mu
}

// TypeOf returns the object's Data["type"] value, or "" if absent or not a
// string. The type-index is keyed on this value.
func (o *Object) TypeOf() string {
	v, ok := o.Data[TypeKey]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Clone returns a shallow copy of the object suitable for handing to a
// caller outside the registry's lock (the Data map itself is still shared,
// so callers must treat it as read-only).
func (o *Object) Clone() *Object {
	return &Object{
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
