package pipeline

// sendState tracks a send through its lifecycle. Once a send reaches
// statePersisted its broadcast is always attempted; delivery itself stays
// best-effort.
type sendState int

const (
	stateReceived sendState = iota
	stateAuthorized
	statePersisted
	stateBroadcast
	stateAcknowledged
	stateAuthDenied
	statePersistFailed
)

func (s sendState) String() string {
	switch s {
	case stateReceived:
		return "RECEIVED"
	case stateAuthorized:
		return "AUTHORIZED"
	case statePersisted:
		return "PERSISTED"
	case stateBroadcast:
		return "BROADCAST"
	case stateAcknowledged:
		return "ACKNOWLEDGED"
	case stateAuthDenied:
		return "AUTH_DENIED"
	case statePersistFailed:
		return "PERSIST_FAILED"
	default:
		return "UNKNOWN"
	}
}
