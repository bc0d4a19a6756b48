package models

// Event types pushed over the real-time channel.
const (
	EventNewMessage   = "new_message"
	EventStatusUpdate = "status_update"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event is a WSMessage addressed to the subscribers of one conversation.
type Event struct {
	Conversation string    `json:"conversation"`
	Message      WSMessage `json:"message"`
}

// NewMessageEvent wraps a stored message for broadcasting.
func NewMessageEvent(m *Message) Event {
	return Event{
		Conversation: m.WaID,
		Message:      WSMessage{Type: EventNewMessage, Payload: m},
	}
}

// StatusUpdateEvent wraps a status change for broadcasting.
func StatusUpdateEvent(u StatusUpdate) Event {
	return Event{
		Conversation: u.WaID,
		Message:      WSMessage{Type: EventStatusUpdate, Payload: u},
	}
}
