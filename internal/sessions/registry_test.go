package sessions

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamelobby/internal/config"
	"gamelobby/internal/domain"
)

func newTestRegistry(opts config.Options) *Registry {
	return New(opts, nil)
}

func TestCreateSession_FirstMemberIsAuthority(t *testing.T) {
	r := newTestRegistry(config.Default())

	result, err := r.CreateSession("conn-1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, domain.Authority, result.Member.Role)

	got, ok := r.GetSession(result.SessionID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Version)
	assert.False(t, got.GameStarted)
	assert.Len(t, got.Members, 1)
}

func TestCreateSession_AspectRatioIsClamped(t *testing.T) {
	r := newTestRegistry(config.Default())

	result, err := r.CreateSession("conn-1", 100.0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, result.AspectRatio)

	result2, err := r.CreateSession("conn-2", 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.25, result2.AspectRatio)
}

func TestCreateSession_RejectsDoubleBinding(t *testing.T) {
	r := newTestRegistry(config.Default())

	_, err := r.CreateSession("conn-1", 1.0)
	require.NoError(t, err)

	_, err = r.CreateSession("conn-1", 1.0)
	assert.ErrorIs(t, err, domain.ErrAlreadyInSession)
}

func TestCreateSession_CapacityReached(t *testing.T) {
	opts := config.Default()
	opts.MaxSessions = 1
	r := newTestRegistry(opts)

	_, err := r.CreateSession("conn-1", 1.0)
	require.NoError(t, err)

	_, err = r.CreateSession("conn-2", 1.0)
	assert.ErrorIs(t, err, domain.ErrCapacityReached)
}

func TestJoinSession_SessionFull(t *testing.T) {
	opts := config.Default()
	opts.MaxMembersPerSession = 1
	r := newTestRegistry(opts)

	result, err := r.CreateSession("conn-1", 1.0)
	require.NoError(t, err)

	_, err = r.JoinSession(result.SessionID, "conn-2")
	assert.ErrorIs(t, err, domain.ErrSessionFull)
}

func TestJoinSession_NotFound(t *testing.T) {
	r := newTestRegistry(config.Default())
	_, err := r.JoinSession(uuid.New(), "conn-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinSession_ReturnsAFullMemberSnapshotWithoutTouchingTheLiveMap(t *testing.T) {
	r := newTestRegistry(config.Default())

	created, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)

	joined, err := r.JoinSession(created.SessionID, "conn-b")
	require.NoError(t, err)

	assert.Len(t, joined.Members, 2, "snapshot must include the authority and the new joiner")
	assert.Equal(t, created.SessionName, joined.SessionName)
	assert.Equal(t, created.AspectRatio, joined.AspectRatio)
}

// Scenario 1 from spec §8: Authority promotion.
func TestLeaveSession_PromotesAuthorityWhenParticipantsRemain(t *testing.T) {
	r := newTestRegistry(config.Default())

	created, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)
	_, err = r.JoinSession(created.SessionID, "conn-p1")
	require.NoError(t, err)
	_, err = r.JoinSession(created.SessionID, "conn-p2")
	require.NoError(t, err)
	_, err = r.JoinSession(created.SessionID, "conn-p3")
	require.NoError(t, err)

	before, ok := r.GetSession(created.SessionID)
	require.True(t, ok)
	require.Len(t, before.Members, 4)

	result, err := r.LeaveSession("conn-a")
	require.NoError(t, err)
	require.False(t, result.SessionDestroyed)
	require.NotNil(t, result.PromotedMemberID)
	assert.NotEqual(t, created.Member.ID, *result.PromotedMemberID)

	got, ok := r.GetSession(created.SessionID)
	require.True(t, ok)
	assert.Len(t, got.Members, 3)
	assert.Equal(t, uint64(2), got.Version)

	authorities := 0
	for _, m := range got.Members {
		if m.Role == domain.Authority {
			authorities++
		}
	}
	assert.Equal(t, 1, authorities, "exactly one authority must remain (I1)")
}

func TestLeaveSession_DestroysSessionWhenLastMemberLeaves(t *testing.T) {
	r := newTestRegistry(config.Default())

	created, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)

	result, err := r.LeaveSession("conn-a")
	require.NoError(t, err)
	assert.True(t, result.SessionDestroyed)

	_, ok := r.GetSession(created.SessionID)
	assert.False(t, ok)
}

// L1: Create(c) then Leave(c) restores the registry (modulo name reuse).
func TestLeaveSession_RoundTripRestoresEmptyRegistry(t *testing.T) {
	r := newTestRegistry(config.Default())

	before := r.ListActiveSessions()

	_, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)
	_, err2 := r.LeaveSession("conn-a")
	require.NoError(t, err2)

	after := r.ListActiveSessions()
	assert.Equal(t, before.Sessions, after.Sessions)
	assert.Equal(t, before.CanCreateSession, after.CanCreateSession)

	_, ok := r.GetMemberByConnection("conn-a")
	assert.False(t, ok)
}

func TestLeaveSession_IsIdempotentAgainstDoubleDeparture(t *testing.T) {
	r := newTestRegistry(config.Default())
	_, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)

	_, err = r.LeaveSession("conn-a")
	require.NoError(t, err)

	_, err = r.LeaveSession("conn-a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListActiveSessions_SortedByCreatedAtDescending(t *testing.T) {
	r := newTestRegistry(config.Default())

	_, err := r.CreateSession("conn-1", 1.0)
	require.NoError(t, err)
	_, err = r.CreateSession("conn-2", 1.0)
	require.NoError(t, err)

	snap := r.ListActiveSessions()
	require.Len(t, snap.Sessions, 2)
	assert.True(t, !snap.Sessions[0].CreatedAt.Before(snap.Sessions[1].CreatedAt))
	assert.True(t, snap.CanCreateSession)
}

func TestGetMemberByConnection_ReturnsACopyNotTheLivePointer(t *testing.T) {
	r := newTestRegistry(config.Default())
	created, err := r.CreateSession("conn-a", 1.0)
	require.NoError(t, err)

	before, ok := r.GetMemberByConnection("conn-a")
	require.True(t, ok)
	assert.Equal(t, domain.Authority, before.Role)

	// Force a promotion cycle: a second member joins, then the first
	// leaves, handing authority to the second. The earlier snapshot must
	// not have observed (or raced with) that later mutation.
	_, err = r.JoinSession(created.SessionID, "conn-b")
	require.NoError(t, err)
	_, err = r.LeaveSession("conn-a")
	require.NoError(t, err)

	assert.Equal(t, domain.Authority, before.Role, "a snapshot taken before promotion must stay unchanged")

	after, ok := r.GetMemberByConnection("conn-b")
	require.True(t, ok)
	assert.Equal(t, domain.Authority, after.Role)
}

// Index consistency (I2) under concurrent connect/disconnect churn.
func TestConcurrentCreateAndLeave_PreservesIndexConsistency(t *testing.T) {
	opts := config.Default()
	opts.MaxSessions = 1000
	r := newTestRegistry(opts)

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := uuid.New().String()
			_, err := r.CreateSession(connID, 1.0)
			if err != nil {
				return
			}
			_, _ = r.LeaveSession(connID)
		}(i)
	}
	wg.Wait()

	snap := r.ListActiveSessions()
	assert.Empty(t, snap.Sessions)
}
