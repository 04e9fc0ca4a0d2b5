package domain

import "errors"

// Session Registry errors.
var (
	ErrAlreadyInSession = errors.New("domain: connection is already bound to a session")
	ErrCapacityReached  = errors.New("domain: session capacity reached")
	ErrSessionFull      = errors.New("domain: session member capacity reached")
	ErrNotFound         = errors.New("domain: not found")
)

// Hub Dispatcher errors.
var (
	ErrNotAuthority   = errors.New("domain: caller is not the session authority")
	ErrAlreadyStarted = errors.New("domain: game already started")
)
