package port

// StatusBroadcaster pushes status transitions to live subscribers keyed by
// correlation id. Best effort; delivery is not guaranteed.
type StatusBroadcaster interface {
	Broadcast(correlationID, status, errMsg string)
}
