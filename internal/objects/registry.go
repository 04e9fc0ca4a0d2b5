// Package objects implements the Object Registry: per-session object
// storage with optimistic concurrency, scope-based lifetime, and ownership
// migration on member departure.
package objects

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gamelobby/internal/config"
	"gamelobby/internal/domain"
)

// SessionLookup is the narrow view of the Session Registry this package
// needs. Objects live on domain.Session.Objects itself (this Registry is
// its sole mutator), but membership checks must go through the Session
// Registry's own lock rather than touching Session.Members directly.
type SessionLookup interface {
	GetSession(id uuid.UUID) (*domain.Session, bool)
	IsMember(sessionID, memberID uuid.UUID) bool
}

// Migration records a single ownership reassignment performed by
// HandleMemberDeparture.
type Migration struct {
	ObjectID   uuid.UUID
	NewOwnerID uuid.UUID
}

// DepartureResult is what HandleMemberDeparture reports back to the Hub
// Dispatcher so it can emit the right broadcast events.
type DepartureResult struct {
	DeletedIDs    []uuid.UUID
	Migrations    []Migration
	AffectedTypes []string
}

// Registry is the authoritative, in-memory store of session-scoped objects.
// mu guards session.Objects map structure (insert/delete) and the
// type-index; every mutator, including UpdateObject, holds mu across its
// entire read-check-mutate-reindex sequence so the type-index can never
// observe a state the Data mutation hasn't committed to yet. Each Object's
// own mu is taken in addition, guarding a clone against a concurrent
// mutation for callers that only hold mu for reading (GetObject,
// ListSessionObjects).
type Registry struct {
	mu sync.RWMutex

	// typeIndex is the secondary index spec'd by §4.C.5: sessionID -> type
	// -> set of object ids. Kept transactionally consistent with every
	// create/update/delete under mu.
	typeIndex map[uuid.UUID]map[string]map[uuid.UUID]struct{}

	sessions SessionLookup
	opts     config.Options
	log      *logrus.Entry
}

// New constructs an empty Registry backed by sessions for membership checks.
func New(opts config.Options, sessions SessionLookup, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		typeIndex: make(map[uuid.UUID]map[string]map[uuid.UUID]struct{}),
		sessions:  sessions,
		opts:      opts,
		log:       log.WithField("component", "objects.Registry"),
	}
}

func (r *Registry) indexInsert(sessionID, objectID uuid.UUID, typ string) {
	if typ == "" {
		return
	}
	bySession, ok := r.typeIndex[sessionID]
	if !ok {
		bySession = make(map[string]map[uuid.UUID]struct{})
		r.typeIndex[sessionID] = bySession
	}
	set, ok := bySession[typ]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		bySession[typ] = set
	}
	set[objectID] = struct{}{}
}

func (r *Registry) removeFromIndex(sessionID, objectID uuid.UUID, typ string) {
	if typ == "" {
		return
	}
	bySession, ok := r.typeIndex[sessionID]
	if !ok {
		return
	}
	set, ok := bySession[typ]
	if !ok {
		return
	}
	delete(set, objectID)
	if len(set) == 0 {
		delete(bySession, typ)
	}
}

func (r *Registry) reindexType(sessionID, objectID uuid.UUID, oldType, newType string) {
	if oldType == newType {
		return
	}
	r.removeFromIndex(sessionID, objectID, oldType)
	r.indexInsert(sessionID, objectID, newType)
}

// cloneData returns a shallow copy of data so the stored Object never
// shares a mutable map with the caller that requested its creation.
func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// CreateObject implements §4.C.1.
func (r *Registry) CreateObject(sessionID, creatorMemberID uuid.UUID, scope domain.Scope, data map[string]any, ownerMemberID *uuid.UUID) *domain.Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	logCtx := r.log.WithFields(logrus.Fields{"session_id": sessionID, "creator_member_id": creatorMemberID})

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		logCtx.Warn("CreateObject: session not found")
		return nil
	}
	if !r.sessions.IsMember(sessionID, creatorMemberID) {
		logCtx.Warn("CreateObject: creator is not a member")
		return nil
	}
	owner := creatorMemberID
	if ownerMemberID != nil {
		if !r.sessions.IsMember(sessionID, *ownerMemberID) {
			logCtx.Warn("CreateObject: explicit owner is not a member")
			return nil
		}
		owner = *ownerMemberID
	}

	now := time.Now()
	obj := &domain.Object{
		ID:              uuid.New(),
		SessionID:       sessionID,
		CreatorMemberID: creatorMemberID,
		OwnerMemberID:   owner,
		Scope:           scope,
		Data:            cloneData(data),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	session.Objects[obj.ID] = obj
	r.indexInsert(sessionID, obj.ID, obj.TypeOf())

	logCtx.WithFields(logrus.Fields{"object_id": obj.ID, "scope": scope}).Info("CreateObject: object created")
	return obj
}

// UpdateObject implements §4.C.2: a silent no-op (nil) on missing
// session/object or a stale expectedVersion, never an error. r.mu is held
// across the whole read-check-mutate-reindex sequence (not just the
// session/object lookup) so the type-index reindex can never be observed
// out of order against the Data mutation it follows — two concurrent
// callers changing the same object's type can no longer race each other's
// reindex step.
func (r *Registry) UpdateObject(sessionID, objectID uuid.UUID, patch map[string]any, expectedVersion *uint64) *domain.Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		return nil
	}
	obj, ok := session.Objects[objectID]
	if !ok {
		return nil
	}

	lock := obj.Lock()
	lock.Lock()
	defer lock.Unlock()

	if expectedVersion != nil && obj.Version != *expectedVersion {
		r.log.WithFields(logrus.Fields{
			"session_id": sessionID, "object_id": objectID,
			"expected_version": *expectedVersion, "actual_version": obj.Version,
		}).Debug("UpdateObject: stale version, no-op")
		return nil
	}
	oldType := obj.TypeOf()
	for k, v := range patch {
		obj.Data[k] = v
	}
	obj.Version++
	obj.UpdatedAt = time.Now()
	newType := obj.TypeOf()
	r.reindexType(sessionID, objectID, oldType, newType)
	clone := obj.Clone()

	r.log.WithFields(logrus.Fields{"session_id": sessionID, "object_id": objectID, "version": clone.Version}).Debug("UpdateObject: applied")
	return clone
}

// Patch pairs a target object with the patch to apply, for UpdateObjects.
type Patch struct {
	ObjectID        uuid.UUID
	Data            map[string]any
	ExpectedVersion *uint64
}

// UpdateObjects implements §4.C.3: each patch is applied independently;
// failures are skipped, not aborted. Returns successfully updated objects
// in input order.
func (r *Registry) UpdateObjects(sessionID uuid.UUID, patches []Patch) []*domain.Object {
	updated := make([]*domain.Object, 0, len(patches))
	for _, p := range patches {
		if obj := r.UpdateObject(sessionID, p.ObjectID, p.Data, p.ExpectedVersion); obj != nil {
			updated = append(updated, obj)
		}
	}
	return updated
}

// DeleteObject implements §4.C.4: idempotent take-and-remove.
func (r *Registry) DeleteObject(sessionID, objectID uuid.UUID) *domain.Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		return nil
	}
	obj, ok := session.Objects[objectID]
	if !ok {
		return nil
	}
	delete(session.Objects, objectID)
	r.removeFromIndex(sessionID, objectID, obj.TypeOf())

	r.log.WithFields(logrus.Fields{"session_id": sessionID, "object_id": objectID}).Info("DeleteObject: removed")
	return obj.Clone()
}

// GetObject returns a snapshot of a single object.
func (r *Registry) GetObject(sessionID, objectID uuid.UUID) (*domain.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		return nil, false
	}
	obj, ok := session.Objects[objectID]
	if !ok {
		return nil, false
	}
	lock := obj.Lock()
	lock.Lock()
	clone := obj.Clone()
	lock.Unlock()
	return clone, true
}

// ListSessionObjects returns a snapshot of every object in a session.
func (r *Registry) ListSessionObjects(sessionID uuid.UUID) []*domain.Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		return nil
	}
	out := make([]*domain.Object, 0, len(session.Objects))
	for _, obj := range session.Objects {
		lock := obj.Lock()
		lock.Lock()
		out = append(out, obj.Clone())
		lock.Unlock()
	}
	return out
}

// CountByType implements §4.C.5.
func (r *Registry) CountByType(sessionID uuid.UUID, typeKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySession, ok := r.typeIndex[sessionID]
	if !ok {
		return 0
	}
	return len(bySession[typeKey])
}

// CleanupSession drops the type-index for a session that the Session
// Registry has just destroyed. Not spec'd as its own RPC — this is
// housekeeping the Dispatcher triggers alongside a destroyed departure
// result, mirroring how the teacher deletes a room's entry from every
// side-table once its last client leaves.
func (r *Registry) CleanupSession(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.typeIndex, sessionID)
}

// HandleMemberDeparture implements §4.C.6.
//
// PerSession orphans are reassigned in ascending CreatedAt order (ties
// broken by object id) as the stable substitute for "iteration order over
// the session's object map" — Go map iteration has no defined order, so
// creation order is the closest faithful analogue of an insertion-ordered
// map.
func (r *Registry) HandleMemberDeparture(sessionID, departingMemberID uuid.UUID, remainingMemberIDs []uuid.UUID) *DepartureResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &DepartureResult{}
	affectedTypes := make(map[string]struct{})

	session, ok := r.sessions.GetSession(sessionID)
	if !ok {
		return result
	}

	var orphans []*domain.Object
	for _, obj := range session.Objects {
		if obj.OwnerMemberID != departingMemberID {
			continue
		}
		switch obj.Scope {
		case domain.PerMember:
			delete(session.Objects, obj.ID)
			typ := obj.TypeOf()
			r.removeFromIndex(sessionID, obj.ID, typ)
			result.DeletedIDs = append(result.DeletedIDs, obj.ID)
			if typ != "" {
				affectedTypes[typ] = struct{}{}
			}
		case domain.PerSession:
			if len(remainingMemberIDs) == 0 {
				// Session is about to be destroyed; nothing to migrate to.
				continue
			}
			orphans = append(orphans, obj)
		}
	}

	sort.Slice(orphans, func(i, j int) bool {
		if !orphans[i].CreatedAt.Equal(orphans[j].CreatedAt) {
			return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
		}
		return orphans[i].ID.String() < orphans[j].ID.String()
	})

	n := len(remainingMemberIDs)
	for i, obj := range orphans {
		newOwner := remainingMemberIDs[0]
		if r.opts.DistributeOrphanedObjects && n > 1 {
			newOwner = remainingMemberIDs[i%n]
		}
		obj.OwnerMemberID = newOwner
		obj.Version++
		obj.UpdatedAt = time.Now()
		result.Migrations = append(result.Migrations, Migration{ObjectID: obj.ID, NewOwnerID: newOwner})
	}

	for typ := range affectedTypes {
		result.AffectedTypes = append(result.AffectedTypes, typ)
	}
	sort.Strings(result.AffectedTypes)

	r.log.WithFields(logrus.Fields{
		"session_id":          sessionID,
		"departing_member_id": departingMemberID,
		"deleted":             len(result.DeletedIDs),
		"migrated":            len(result.Migrations),
	}).Info("HandleMemberDeparture: orphaned objects resolved")

	return result
}
