// Package audience resolves who an outbound message for an event is addressed to.
package audience

import (
	"errors"
	"fmt"

	"github.com/sipeed/cardbot/pkg/events"
)

// IDType is the id space of a receiver. open_id and chat_id never mix.
type IDType string

const (
	OpenID IDType = "open_id"
	ChatID IDType = "chat_id"
)

func (t IDType) String() string { return string(t) }

// Audience is a resolved (receiver id type, receiver id) pair.
type Audience struct {
	IDType IDType `json:"receive_id_type"`
	ID     string `json:"receive_id"`
}

// User addresses a user by open id.
func User(openID string) Audience { return Audience{IDType: OpenID, ID: openID} }

// Chat addresses a chat by chat id.
func Chat(chatID string) Audience { return Audience{IDType: ChatID, ID: chatID} }

// ErrNoReceiver means the event carried no identity for the selected id space.
var ErrNoReceiver = errors.New("no receiver id on event")

// Resolve picks the receiver for an event:
//
//	chat-entered, menu-click, card-action   → operator open_id
//	message-receive in a group              → chat_id
//	message-receive in a p2p chat           → sender open_id
func Resolve(ev events.Event) (Audience, error) {
	var a Audience
	switch e := ev.(type) {
	case events.ChatEntered:
		a = User(e.OperatorOpenID)
	case events.MenuClick:
		a = User(e.OperatorOpenID)
	case events.CardAction:
		a = User(e.OperatorOpenID)
	case events.MessageReceive:
		if e.ChatType == events.ChatTypeGroup {
			a = Chat(e.ChatID)
		} else {
			a = User(e.SenderOpenID)
		}
	default:
		return Audience{}, fmt.Errorf("resolve audience for %T: %w", ev, ErrNoReceiver)
	}
	if a.ID == "" {
		return Audience{}, fmt.Errorf("resolve %s for %s: %w", a.IDType, ev.Kind(), ErrNoReceiver)
	}
	return a, nil
}
