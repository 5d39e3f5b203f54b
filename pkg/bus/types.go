package bus

import "github.com/sipeed/cardbot/pkg/cards"

// SystemEvent is a typed event flowing through the bus for observability:
// dispatch outcomes, send failures, scheduler ticks.
type SystemEvent struct {
	Type   string      `json:"type"`   // e.g. "dispatch.outcome", "send.failed"
	Source string      `json:"source"` // e.g. "router", "sender"
	Data   interface{} `json:"data"`
}

// System event types.
const (
	EventDispatch   = "dispatch.outcome"
	EventSendOK     = "send.ok"
	EventSendFailed = "send.failed"
	EventScheduled  = "schedule.fired"
)

// OutboundTap is what outbound taps receive: the request plus whether the
// queue had to drop an older request to make room for it.
type OutboundTap struct {
	Request    cards.SendRequest `json:"request"`
	DroppedOld bool              `json:"dropped_old,omitempty"`
}
