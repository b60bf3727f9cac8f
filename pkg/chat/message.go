package chat

import "time"

// Message is a single chat message as observed from the server.
// Identity is ID alone: two messages with the same ID are the same logical message.
type Message struct {
	ID             string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	User           string    `json:"user"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Notice categories reported to the UI for non-fatal transport events.
const (
	NoticeConnected    = "connected"
	NoticeDisconnected = "disconnected"
	NoticeFetchError   = "fetch-error"
	NoticeSendError    = "send-error"
	NoticeStreamError  = "stream-error"
)

// Reversed returns a copy of msgs in the opposite order.
func Reversed(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
