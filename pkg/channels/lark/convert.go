package lark

import (
	"errors"

	"github.com/google/uuid"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkapplication "github.com/larksuite/oapi-sdk-go/v3/service/application/v6"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/sipeed/cardbot/pkg/events"
)

// ErrEmptyEvent is returned when the SDK hands over an event without a body.
var ErrEmptyEvent = errors.New("sdk event has no body")

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func eventID(b *larkevent.EventV2Base) string {
	if b != nil && b.Header != nil && b.Header.EventID != "" {
		return b.Header.EventID
	}
	return uuid.NewString()
}

func imOpenID(id *larkim.UserId) string {
	if id == nil {
		return ""
	}
	return deref(id.OpenId)
}

// ChatEnteredFromSDK converts a bot_p2p_chat_entered event.
func ChatEnteredFromSDK(ev *larkim.P2ChatAccessEventBotP2pChatEnteredV1) (events.ChatEntered, error) {
	if ev == nil || ev.Event == nil {
		return events.ChatEntered{}, ErrEmptyEvent
	}
	return events.ChatEntered{
		Base:           events.Base{EventID: eventID(ev.EventV2Base)},
		OperatorOpenID: imOpenID(ev.Event.OperatorId),
		ChatID:         deref(ev.Event.ChatId),
	}, nil
}

// MenuClickFromSDK converts a bot menu event.
func MenuClickFromSDK(ev *larkapplication.P2BotMenuV6) (events.MenuClick, error) {
	if ev == nil || ev.Event == nil {
		return events.MenuClick{}, ErrEmptyEvent
	}
	out := events.MenuClick{
		Base:     events.Base{EventID: eventID(ev.EventV2Base)},
		EventKey: deref(ev.Event.EventKey),
	}
	if op := ev.Event.Operator; op != nil && op.OperatorId != nil {
		out.OperatorOpenID = deref(op.OperatorId.OpenId)
	}
	return out, nil
}

// MessageReceiveFromSDK converts a message receive event.
func MessageReceiveFromSDK(ev *larkim.P2MessageReceiveV1) (events.MessageReceive, error) {
	if ev == nil || ev.Event == nil || ev.Event.Message == nil {
		return events.MessageReceive{}, ErrEmptyEvent
	}
	msg := ev.Event.Message
	out := events.MessageReceive{
		Base:        events.Base{EventID: eventID(ev.EventV2Base)},
		MessageID:   deref(msg.MessageId),
		ChatID:      deref(msg.ChatId),
		ChatType:    deref(msg.ChatType),
		MessageType: deref(msg.MessageType),
		Content:     deref(msg.Content),
	}
	if s := ev.Event.Sender; s != nil {
		out.SenderOpenID = imOpenID(s.SenderId)
	}
	return out, nil
}

// CardActionFromSDK converts a card action trigger callback.
func CardActionFromSDK(ev *callback.CardActionTriggerEvent) (events.CardAction, error) {
	if ev == nil || ev.Event == nil {
		return events.CardAction{}, ErrEmptyEvent
	}
	out := events.CardAction{Base: events.Base{EventID: eventID(ev.EventV2Base)}}
	if op := ev.Event.Operator; op != nil {
		out.OperatorOpenID = op.OpenID
	}
	if a := ev.Event.Action; a != nil {
		out.Value = a.Value
		out.FormValue = a.FormValue
	}
	return out, nil
}
