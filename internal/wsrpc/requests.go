package wsrpc

import (
	"github.com/google/uuid"

	"gamelobby/internal/domain"
	"gamelobby/internal/objects"
)

// Request payload shapes, one per incoming RPC method. handleIncoming
// decodes envelope.Payload into these via the Server's Codec.

type createSessionRequest struct {
	AspectRatio float64 `json:"aspectRatio"`
}

type joinSessionRequest struct {
	SessionID uuid.UUID `json:"sessionId"`
}

type createObjectRequest struct {
	Scope domain.Scope   `json:"scope"`
	Data  map[string]any `json:"data"`
}

type updatePatch struct {
	ObjectID        uuid.UUID      `json:"objectId"`
	Data            map[string]any `json:"data"`
	ExpectedVersion *uint64        `json:"expectedVersion,omitempty"`
}

type updateObjectsRequest struct {
	Updates []updatePatch `json:"updates"`
}

func (r updateObjectsRequest) toPatches() []objects.Patch {
	patches := make([]objects.Patch, len(r.Updates))
	for i, u := range r.Updates {
		patches[i] = objects.Patch{ObjectID: u.ObjectID, Data: u.Data, ExpectedVersion: u.ExpectedVersion}
	}
	return patches
}

type deleteObjectRequest struct {
	ObjectID uuid.UUID `json:"objectId"`
}

// relayRequest covers all five relay RPCs (§4.D.7); the payload is opaque
// game-logic data the dispatcher forwards verbatim.
type relayRequest struct {
	Payload map[string]any `json:"payload"`
}

// errorResponse is sent back when a request fails to decode or its RPC
// rejects the call (e.g. session full, unknown session).
type errorResponse struct {
	Error string `json:"error"`
}
