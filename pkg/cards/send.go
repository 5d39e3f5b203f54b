package cards

import (
	"fmt"

	"github.com/sipeed/cardbot/pkg/audience"
)

// MsgKind is the outbound message type.
type MsgKind string

const (
	MsgText        MsgKind = "text"
	MsgInteractive MsgKind = "interactive"
)

// SendRequest is one fire-and-forget outbound message. When ReplyTo is set the
// message is sent as an in-thread reply to that message id and Audience is
// informational only.
type SendRequest struct {
	Audience audience.Audience `json:"audience"`
	MsgKind  MsgKind           `json:"msg_type"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	// EventID correlates the send with the event that caused it.
	EventID string `json:"event_id,omitempty"`
}

// IsReply reports whether the request uses the reply-by-message-id path.
func (r SendRequest) IsReply() bool { return r.ReplyTo != "" }

// NewCardSend addresses a template card to an audience.
func NewCardSend(to audience.Audience, card CardState) (SendRequest, error) {
	content, err := card.Content()
	if err != nil {
		return SendRequest{}, fmt.Errorf("serialize card %s: %w", card.TemplateID(), err)
	}
	return SendRequest{Audience: to, MsgKind: MsgInteractive, Content: content}, nil
}
