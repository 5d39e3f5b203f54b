package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrUnknownKind is returned for envelopes whose kind the decoder does not know.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrMalformed is returned when the envelope or its event body is not valid JSON.
	ErrMalformed = errors.New("malformed event envelope")
)

// Envelope is the raw unit delivered by a transport. Two shapes are accepted:
//
//	{"kind": "...", "event_id": "...", "event": {...}}
//	{"schema": "2.0", "header": {"event_id": "...", "event_type": "..."}, "event": {...}}
type Envelope struct {
	Kind    Kind            `json:"kind,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	Header  *envelopeHeader `json:"header,omitempty"`
	Event   json.RawMessage `json:"event"`
}

type envelopeHeader struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
}

// Wire shapes of the event bodies, as the open platform sends them.

type wireUserID struct {
	OpenID string `json:"open_id"`
}

type wireChatEntered struct {
	ChatID     string     `json:"chat_id"`
	OperatorID wireUserID `json:"operator_id"`
}

type wireMenuClick struct {
	Operator struct {
		OperatorID wireUserID `json:"operator_id"`
	} `json:"operator"`
	EventKey string `json:"event_key"`
}

type wireMessageReceive struct {
	Sender struct {
		SenderID wireUserID `json:"sender_id"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		ChatID      string `json:"chat_id"`
		ChatType    string `json:"chat_type"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	} `json:"message"`
}

type wireCardAction struct {
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
	Action struct {
		Value     map[string]interface{} `json:"value"`
		FormValue map[string]interface{} `json:"form_value"`
	} `json:"action"`
}

// DecodeEnvelope parses a raw envelope into a typed Event.
func DecodeEnvelope(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Decode()
}

// Decode turns the envelope's body into the typed Event for its kind.
func (e Envelope) Decode() (Event, error) {
	kind, id := e.Kind, e.EventID
	if e.Header != nil {
		if kind == "" {
			kind = Kind(e.Header.EventType)
		}
		if id == "" {
			id = e.Header.EventID
		}
	}
	kind = Kind(strings.TrimSpace(string(kind)))
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if id == "" {
		id = uuid.NewString()
	}
	base := Base{EventID: id}

	body := e.Event
	if len(body) == 0 || string(body) == "null" {
		body = []byte("{}")
	}

	switch kind {
	case KindChatEntered:
		var w wireChatEntered
		if err := unmarshalBody(body, &w); err != nil {
			return nil, err
		}
		return ChatEntered{Base: base, OperatorOpenID: w.OperatorID.OpenID, ChatID: w.ChatID}, nil

	case KindMenuClick:
		var w wireMenuClick
		if err := unmarshalBody(body, &w); err != nil {
			return nil, err
		}
		return MenuClick{Base: base, OperatorOpenID: w.Operator.OperatorID.OpenID, EventKey: w.EventKey}, nil

	case KindMessageReceive:
		var w wireMessageReceive
		if err := unmarshalBody(body, &w); err != nil {
			return nil, err
		}
		return MessageReceive{
			Base:         base,
			MessageID:    w.Message.MessageID,
			ChatID:       w.Message.ChatID,
			ChatType:     w.Message.ChatType,
			MessageType:  w.Message.MessageType,
			Content:      w.Message.Content,
			SenderOpenID: w.Sender.SenderID.OpenID,
		}, nil

	case KindCardAction:
		var w wireCardAction
		if err := unmarshalBody(body, &w); err != nil {
			return nil, err
		}
		return CardAction{
			Base:           base,
			OperatorOpenID: w.Operator.OpenID,
			Value:          w.Action.Value,
			FormValue:      w.Action.FormValue,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func unmarshalBody(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
