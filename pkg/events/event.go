package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type EventType string

const (
	EventRender EventType = "render"
	EventNotice EventType = "notice"
)

// Event is what the sync engine reports to the display side. Render events carry a
// user/body pair, notice events a category/detail pair.
type Event struct {
	Type     EventType `json:"type"`
	ConvID   string    `json:"conv_id"`
	User     string    `json:"user,omitempty"`
	Body     string    `json:"body,omitempty"`
	Category string    `json:"category,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(&e)
}

func UnmarshalEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	switch e.Type {
	case EventRender, EventNotice:
	default:
		return Event{}, errors.Errorf("decode event: unknown type %q", e.Type)
	}
	return e, nil
}

// TopicForConv names the bus topic of a conversation.
func TopicForConv(convID string) string { return "chatsync:" + convID }
