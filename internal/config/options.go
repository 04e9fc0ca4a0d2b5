// Package config holds the small options struct the core is configured
// with. There is deliberately no env-var or file loading here — per the
// spec, configuration beyond this struct is the caller's problem.
package config

// Options configures the Session Registry and Object Registry. The caller
// constructs this directly (see internal/app.DefaultConfig, which
// cmd/server/main.go uses); Default returns the reference implementation's
// defaults.
type Options struct {
	// MaxSessions bounds how many non-empty sessions may exist at once.
	MaxSessions int
	// MaxMembersPerSession bounds how many members a single session may hold.
	MaxMembersPerSession int
	// DistributeOrphanedObjects controls how PerSession objects are
	// reassigned when their owner departs: round-robin across all
	// remaining members (true) or entirely to the first remaining member
	// (false).
	DistributeOrphanedObjects bool
}

// Default returns the reference implementation's defaults: 6 sessions, 4
// members per session, orphan distribution enabled.
func Default() Options {
	return Options{
		MaxSessions:               6,
		MaxMembersPerSession:      4,
		DistributeOrphanedObjects: true,
	}
}
