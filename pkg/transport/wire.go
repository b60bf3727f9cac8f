package transport

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// ChannelForConversation names the notification channel of a conversation.
func ChannelForConversation(convID string) string {
	return "conversation:" + convID
}

// SubscribeRequest is the control frame sent right after a stream connects.
type SubscribeRequest struct {
	Token    string   `json:"token,omitempty"`
	Channels []string `json:"channels"`
}

// Frame is one inbound push notification. The server relays the payload that was
// queued when the message was sent, which carries the text under "message".
// message_id is only present when the server includes it.
type Frame struct {
	MessageID wireID `json:"message_id,omitempty"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// HasID reports whether the frame can be deduplicated against the log.
func (f Frame) HasID() bool {
	return strings.TrimSpace(string(f.MessageID)) != ""
}

func (f Frame) ToMessage(convID string) chat.Message {
	return chat.Message{
		ID:             strings.TrimSpace(string(f.MessageID)),
		ConversationID: convID,
		User:           f.User,
		Body:           f.Message,
	}
}

func decodeFrame(op string, raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, &chat.ProtocolError{Op: op, Reason: "undecodable frame", Err: err}
	}
	if f.Error != "" {
		return Frame{}, &chat.ProtocolError{Op: op, Reason: "server error: " + f.Error}
	}
	return f, nil
}

// wireID accepts message ids encoded either as JSON strings or numbers.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "message id is neither string nor number")
	}
	*id = wireID(n.String())
	return nil
}

type wireMessage struct {
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	MessageID      wireID    `json:"message_id"`
	User           string    `json:"user"`
	Body           string    `json:"body"`
}

func (w wireMessage) toMessage(convID string) chat.Message {
	m := chat.Message{
		ID:             strings.TrimSpace(string(w.MessageID)),
		ConversationID: w.ConversationID,
		User:           w.User,
		Body:           w.Body,
		CreatedAt:      w.CreatedAt,
	}
	if m.ConversationID == "" {
		m.ConversationID = convID
	}
	return m
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	User           string `json:"user"`
}

// decodeMessages extracts the "Messages" collection and the optional "NextToken"
// from a response body.
func decodeMessages(op, convID string, body []byte) ([]chat.Message, string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", &chat.ProtocolError{Op: op, Reason: "undecodable response", Err: err}
	}
	rawMessages, ok := lookupKey(envelope, "Messages")
	if !ok {
		return nil, "", &chat.ProtocolError{Op: op, Reason: "response has no Messages field"}
	}
	var wire []wireMessage
	if err := json.Unmarshal(rawMessages, &wire); err != nil {
		return nil, "", &chat.ProtocolError{Op: op, Reason: "malformed Messages field", Err: err}
	}
	var nextToken string
	if rawToken, ok := lookupKey(envelope, "NextToken"); ok {
		// a null or non-string token just means there is no further page
		_ = json.Unmarshal(rawToken, &nextToken)
	}

	msgs := make([]chat.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, w.toMessage(convID))
	}
	return msgs, nextToken, nil
}

func lookupKey(envelope map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if v, ok := envelope[key]; ok {
		return v, true
	}
	for k, v := range envelope {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
