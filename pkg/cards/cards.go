// Package cards holds the immutable value objects the engine produces:
// template card states, toasts, trigger responses and send requests.
package cards

import (
	"encoding/json"
	"time"

	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
)

// TimeLayout is the format of every timestamp written into a card.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in the server's local timezone.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// Variables are template variables substituted into a card at render time.
type Variables map[string]interface{}

// CardState is a template id plus its variables. It is built fresh for every
// response and never mutated afterwards; accessors hand out copies.
type CardState struct {
	templateID string
	variables  Variables
}

// NewCardState copies vars so later changes by the caller cannot leak in.
func NewCardState(templateID string, vars Variables) CardState {
	return CardState{templateID: templateID, variables: copyVars(vars)}
}

func (c CardState) TemplateID() string { return c.templateID }

// Variables returns a copy of the template variables.
func (c CardState) Variables() Variables { return copyVars(c.variables) }

// Variable returns a single variable.
func (c CardState) Variable(name string) (interface{}, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// Template converts the state to the platform's template card shape.
func (c CardState) Template() *callback.Card {
	return &callback.Card{
		Type: "template",
		Data: &callback.TemplateCard{
			TemplateID:       c.templateID,
			TemplateVariable: c.Variables(),
		},
	}
}

// Content serializes the card for use as an interactive message body.
func (c CardState) Content() (string, error) {
	b, err := json.Marshal(c.Template())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func copyVars(in Variables) Variables {
	out := make(Variables, len(in))
	for k, v := range in {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out[k] = v
	}
	return out
}
