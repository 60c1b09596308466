package events

import "encoding/json"

// Type identifies the event category delivered on the client event stream.
type Type string

const (
	// TypeUserPersona is emitted to a persona's owner on create/update/delete.
	TypeUserPersona Type = "user_persona"
	// TypeBotCommands is emitted realm-wide when a bot's command set changes.
	TypeBotCommands Type = "bot_commands"
	// TypeBotPresence is emitted realm-wide on bot connect/disconnect transitions.
	TypeBotPresence Type = "bot_presence"
	// TypeMessage is emitted to users who can see a newly sent message.
	TypeMessage Type = "message"
	// TypeHeartbeat is returned when a long-poll times out with no events.
	TypeHeartbeat Type = "heartbeat"
)

// Event is one entry on a client event queue. IDs increase monotonically
// per queue so clients can acknowledge delivery with last_event_id.
type Event struct {
	ID   int64           `json:"id"`
	Type Type            `json:"type"`
	Op   string          `json:"op,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Payload is an event before it is assigned a per-queue ID.
type Payload struct {
	Type Type
	Op   string
	Data json.RawMessage
}

// NewPayload builds a Payload, marshaling data to JSON. A nil data leaves
// the Data field empty. Marshal errors produce an empty Data field; callers
// pass JSON-safe values.
func NewPayload(t Type, op string, data any) Payload {
	p := Payload{Type: t, Op: op}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			p.Data = raw
		}
	}
	return p
}

// QueueInfo is returned to a client registering a new event queue.
type QueueInfo struct {
	QueueID     string `json:"queue_id"`
	LastEventID int64  `json:"last_event_id"`
}
