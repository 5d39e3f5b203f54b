// Package events defines the typed event contracts cardbot dispatches on.
// Every event leaving the transport MUST be one of these types. No ad-hoc
// map[string]interface{} events travel past the decoder.
package events

// Kind identifies an event type using the open platform's event type names.
type Kind string

const (
	KindChatEntered    Kind = "im.chat.access_event.bot_p2p_chat_entered_v1"
	KindMenuClick      Kind = "application.bot.menu_v6"
	KindMessageReceive Kind = "im.message.receive_v1"
	KindCardAction     Kind = "card.action.trigger"
)

// AllKinds returns every kind the decoder understands.
func AllKinds() []Kind {
	return []Kind{KindChatEntered, KindMenuClick, KindMessageReceive, KindCardAction}
}

func (k Kind) String() string { return string(k) }

// Valid returns true if the kind is recognized.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if known == k {
			return true
		}
	}
	return false
}

// Chat types carried by message-receive events.
const (
	ChatTypeGroup = "group"
	ChatTypeP2P   = "p2p"
)

// MessageTypeText is the only message type the echo reply parses.
const MessageTypeText = "text"

// Event is a decoded, typed event record.
type Event interface {
	Kind() Kind
	// ID is the platform event id, or a generated one when the platform sent none.
	ID() string
}

// Base carries fields common to every event.
type Base struct {
	EventID string `json:"event_id"`
}

func (b Base) ID() string { return b.EventID }

// ChatEntered fires when a user opens a direct chat with the bot.
type ChatEntered struct {
	Base
	OperatorOpenID string `json:"operator_open_id"`
	ChatID         string `json:"chat_id"`
}

func (ChatEntered) Kind() Kind { return KindChatEntered }

// MenuClick fires when a user clicks a bot menu entry.
type MenuClick struct {
	Base
	OperatorOpenID string `json:"operator_open_id"`
	EventKey       string `json:"event_key"`
}

func (MenuClick) Kind() Kind { return KindMenuClick }

// MessageReceive fires for every message the bot can see, in p2p and group chats.
type MessageReceive struct {
	Base
	MessageID    string `json:"message_id"`
	ChatID       string `json:"chat_id"`
	ChatType     string `json:"chat_type"`
	MessageType  string `json:"message_type"`
	Content      string `json:"content"`
	SenderOpenID string `json:"sender_open_id"`
}

func (MessageReceive) Kind() Kind { return KindMessageReceive }

// CardAction fires when a user presses an interactive element on a card.
// Value is what the card attached to the element; FormValue is nil when the
// card had no form.
type CardAction struct {
	Base
	OperatorOpenID string                 `json:"operator_open_id"`
	Value          map[string]interface{} `json:"value"`
	FormValue      map[string]interface{} `json:"form_value,omitempty"`
}

func (CardAction) Kind() Kind { return KindCardAction }
