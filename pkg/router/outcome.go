package router

import (
	"encoding/json"

	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
)

// OutcomeKind says what a dispatch produced.
type OutcomeKind string

const (
	// OutcomeNone means nothing happened: unregistered kind, unmatched menu
	// key, or an error confined to this event.
	OutcomeNone OutcomeKind = "none"
	// OutcomeSend means one or more messages were queued for delivery.
	OutcomeSend OutcomeKind = "send"
	// OutcomeTrigger means a card-action response must go back to the caller.
	OutcomeTrigger OutcomeKind = "trigger"
)

// Outcome is the result of dispatching one event.
type Outcome struct {
	Kind      OutcomeKind
	EventID   string
	EventKind events.Kind
	// Sends lists every message queued for delivery, including follow-up
	// sends a card action asked for.
	Sends []cards.SendRequest
	// Response is only meaningful when Kind is OutcomeTrigger.
	Response cards.TriggerResponse
	// Err is set when the event could not be handled. It never escapes to
	// the transport.
	Err error
}

type outcomeJSON struct {
	Kind      OutcomeKind         `json:"kind"`
	EventID   string              `json:"event_id,omitempty"`
	EventKind events.Kind         `json:"event_kind,omitempty"`
	Sends     []cards.SendRequest `json:"sends,omitempty"`
	Response  interface{}         `json:"response,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// MarshalJSON renders the outcome for the monitor and the simulator. Trigger
// responses are rendered in their wire shape.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Kind:      o.Kind,
		EventID:   o.EventID,
		EventKind: o.EventKind,
		Sends:     o.Sends,
	}
	if o.Kind == OutcomeTrigger {
		out.Response = o.Response.Wire()
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}
