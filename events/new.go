package events

// New constructs an unstamped event carrying payload. Identity fields
// (ID, EventNumber, Timestamp, SessionName, ParentID) are left zero; the
// session actor stamps them during ingest, per spec.md §4.4 step 1.
func New(kind Kind, payload Data) Event {
	return Event{
		Kind:         kind,
		Payload:      payload,
		TriggersTurn: TriggersTurn(kind),
	}
}
