// Package actions resolves card-action triggers into replacement cards.
//
// The whole alarm and approval state machines live in the data each card
// attaches to its own buttons: the alarm card echoes back the time it was
// raised, so resolving needs no server-side state.
package actions

import (
	"fmt"

	"github.com/sipeed/cardbot/pkg/events"
)

// Name is a recognized card action.
type Name string

const (
	Unknown         Name = ""
	SendAlarm       Name = "send_alarm"
	CompleteAlarm   Name = "complete_alarm"
	ConfirmApproval Name = "confirm_approval"
)

// All returns every recognized action name.
func All() []Name {
	return []Name{SendAlarm, CompleteAlarm, ConfirmApproval}
}

// ParseName maps the raw "action" value a card sent to a Name.
// Anything that is not one of the known strings is Unknown.
func ParseName(v interface{}) Name {
	s, ok := v.(string)
	if !ok {
		return Unknown
	}
	for _, n := range All() {
		if string(n) == s {
			return n
		}
	}
	return Unknown
}

// Keys read from the action value and the form.
const (
	keyAction = "action"
	keyTime   = "time"
	keyNotes  = "notes_input"
)

// Payload is a card-action trigger decoded once at the boundary.
type Payload struct {
	Name           Name
	OperatorOpenID string
	// AlarmTime is the "time" value the alarm card attached to its button,
	// carried through untouched. Empty string when the card sent none.
	AlarmTime interface{}
	// Notes is the notes_input form field, "" when the form or field is absent.
	Notes string
}

// Decode extracts a Payload from a card-action event.
func Decode(ev events.CardAction) Payload {
	p := Payload{
		Name:           ParseName(ev.Value[keyAction]),
		OperatorOpenID: ev.OperatorOpenID,
		AlarmTime:      "",
		Notes:          formString(ev.FormValue, keyNotes),
	}
	if t, ok := ev.Value[keyTime]; ok && t != nil {
		p.AlarmTime = t
	}
	return p
}

func formString(form map[string]interface{}, key string) string {
	v, ok := form[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
