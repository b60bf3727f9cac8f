package events

import (
	"time"

	"github.com/rs/zerolog/log"
)

// BusListener publishes engine output onto a Bus instead of rendering it directly.
type BusListener struct {
	bus    *Bus
	convID string
}

func NewBusListener(bus *Bus, convID string) *BusListener {
	return &BusListener{bus: bus, convID: convID}
}

func (l *BusListener) Render(user, body string) {
	l.publish(Event{Type: EventRender, ConvID: l.convID, User: user, Body: body, At: time.Now()})
}

func (l *BusListener) Notice(category, detail string) {
	l.publish(Event{Type: EventNotice, ConvID: l.convID, Category: category, Detail: detail, At: time.Now()})
}

func (l *BusListener) publish(ev Event) {
	if err := l.bus.Publish(ev); err != nil {
		log.Warn().Err(err).Str("component", "events").Str("conv_id", l.convID).Str("type", string(ev.Type)).Msg("publish event failed")
	}
}
