package dispatcher

// GlobalGroup is the transport group every connected connection belongs to
// for the lifetime of its connection, used for session-list signals.
const GlobalGroup = "global"

// Outgoing event method names, sent via Transport.Sender.Send.
const (
	EventSessionsChanged    = "OnSessionsChanged"
	EventMemberJoined       = "OnMemberJoined"
	EventMemberLeft         = "OnMemberLeft"
	EventObjectCreated      = "OnObjectCreated"
	EventObjectsUpdated     = "OnObjectsUpdated"
	EventObjectDeleted      = "OnObjectDeleted"
	EventObjectTypeEmpty    = "OnObjectTypeEmpty"
	EventObjectTypeRestored = "OnObjectTypeRestored"
	EventGameStarted        = "OnGameStarted"
	EventBulletHitReported  = "OnBulletHitReported"
	EventBulletHitConfirmed = "OnBulletHitConfirmed"
	EventBulletHitRejected  = "OnBulletHitRejected"
	EventShipHitReported    = "OnShipHitReported"
	EventScoreReported      = "OnScoreReported"
)

// Relay RPC names (§4.D.7) and the event each one fans out as, with the
// reporter's member id appended to the payload.
const (
	RPCReportBulletHit  = "ReportBulletHit"
	RPCConfirmBulletHit = "ConfirmBulletHit"
	RPCRejectBulletHit  = "RejectBulletHit"
	RPCReportShipHit    = "ReportShipHit"
	RPCReportScore      = "ReportScore"
)

var relayEvents = map[string]string{
	RPCReportBulletHit:  EventBulletHitReported,
	RPCConfirmBulletHit: EventBulletHitConfirmed,
	RPCRejectBulletHit:  EventBulletHitRejected,
	RPCReportShipHit:    EventShipHitReported,
	RPCReportScore:      EventScoreReported,
}
