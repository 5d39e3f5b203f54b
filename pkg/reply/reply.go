// Package reply builds the echo bot's answer to a received message.
package reply

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sipeed/cardbot/pkg/audience"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
)

// FallbackText replaces the echoed text when a message cannot be parsed as text.
const FallbackText = "解析消息失败，请发送文本消息\nparse message failed, please send text message"

const (
	prefixZh = "收到你发送的消息: "
	prefixEn = "Received message: "
)

// ErrNoMessageID means a reply was required but the event carried no message id.
var ErrNoMessageID = errors.New("no message id to reply to")

type textContent struct {
	Text string `json:"text"`
}

// Text extracts the echoed text, substituting FallbackText for anything that
// is not a well-formed text message.
func Text(ev events.MessageReceive) string {
	if ev.MessageType != events.MessageTypeText {
		return FallbackText
	}
	var c textContent
	if err := json.Unmarshal([]byte(ev.Content), &c); err != nil {
		return FallbackText
	}
	return c.Text
}

// Content renders the two-line text payload for text. The payload is
// marshalled rather than built with the SDK's text builder, which splices
// user text into the JSON unescaped.
func Content(text string) string {
	b, _ := json.Marshal(textContent{Text: prefixZh + text + "\n" + prefixEn + text + "\n"})
	return string(b)
}

// Route decides how the echo is delivered. Group chats get a new message in
// the chat; every other chat type gets an in-thread reply to the message.
func Route(ev events.MessageReceive) (cards.SendRequest, error) {
	req := cards.SendRequest{
		MsgKind: cards.MsgText,
		Content: Content(Text(ev)),
		EventID: ev.ID(),
	}

	if ev.ChatType == events.ChatTypeGroup {
		if ev.ChatID == "" {
			return cards.SendRequest{}, fmt.Errorf("echo to group: %w", audience.ErrNoReceiver)
		}
		req.Audience = audience.Chat(ev.ChatID)
		return req, nil
	}

	if ev.MessageID == "" {
		return cards.SendRequest{}, fmt.Errorf("echo to %s chat: %w", ev.ChatType, ErrNoMessageID)
	}
	req.ReplyTo = ev.MessageID
	if ev.SenderOpenID != "" {
		req.Audience = audience.User(ev.SenderOpenID)
	}
	return req, nil
}
