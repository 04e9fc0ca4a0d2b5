// Package transport declares the seam between the core and whatever
// actually carries bytes to a connected client. The Hub Dispatcher depends
// only on these interfaces; it never imports a concrete transport library.
package transport

import "context"

// Transport is the full contract the Hub Dispatcher needs from a
// connection manager: grouping connections for broadcast, and sending to
// them.
type Transport interface {
	Groups() Groups
	Clients() Clients
}

// Groups manages which broadcast groups a connection belongs to. The
// Dispatcher adds a connection to its session's group on join and to the
// global group on connect; it removes both on disconnect.
type Groups interface {
	Add(connectionID, group string)
	Remove(connectionID, group string)
}

// Clients resolves a group name to something that can send to it.
type Clients interface {
	// Group returns a Sender that delivers to every connection currently
	// in group.
	Group(group string) Sender
	// OthersInGroup returns a Sender that delivers to every connection in
	// group except excludeConnectionID — used when the caller already has
	// its own copy of the event and only needs to notify everyone else.
	OthersInGroup(group string, excludeConnectionID string) Sender
}

// Sender delivers one event to whatever connections it was resolved for.
// Implementations fan out to multiple connections internally; a failure to
// reach any individual connection is not surfaced as a partial error, by
// design, per the core's error-handling model (broadcast sends are
// fire-and-forget from the Dispatcher's perspective).
type Sender interface {
	Send(ctx context.Context, method string, payload any) error
}
