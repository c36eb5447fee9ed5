package notify

import "time"

// Event is one outbound lifecycle notification. Core operations return
// their events instead of publishing mid-transaction; the dispatcher
// drains them after commit, so delivery failures can never undo a
// committed state change.
type Event struct {
	Type       string                 `json:"type"`
	Recipient  string                 `json:"recipient"` // "client:3", "provider:1", "courier:7"
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func NewEvent(eventType, recipient string, payload map[string]interface{}) Event {
	return Event{
		Type:       eventType,
		Recipient:  recipient,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}
