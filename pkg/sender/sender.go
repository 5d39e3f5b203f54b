// Package sender delivers queued SendRequests through the messaging API.
//
// Delivery is at-most-once: a failed send is logged with whatever correlation
// the API returned and then dropped. Nothing is retried and nothing flows
// back to the event that caused the send.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"

	"github.com/sipeed/cardbot/pkg/audience"
	"github.com/sipeed/cardbot/pkg/bus"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/logger"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// ErrInvalidRequest is returned for requests that cannot be addressed.
var ErrInvalidRequest = errors.New("invalid send request")

// Result records one delivery attempt. It is published as a system event.
type Result struct {
	Request   cards.SendRequest `json:"request"`
	MessageID string            `json:"message_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      int               `json:"code,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Sender drains the outbound queue into a Messenger.
type Sender struct {
	api     Messenger
	bus     *bus.MessageBus
	timeout time.Duration
}

// New creates a sender. b may be nil when results need not be published.
func New(api Messenger, b *bus.MessageBus) *Sender {
	return &Sender{api: api, bus: b, timeout: DefaultTimeout}
}

// Send performs one delivery. Callers on the event path should queue through
// the bus instead; Send is what the worker calls.
func (s *Sender) Send(ctx context.Context, req cards.SendRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgType := string(req.MsgKind)
	if req.IsReply() {
		return s.api.ReplyMessage(ctx, req.ReplyTo, msgType, req.Content)
	}
	if req.Audience.ID == "" {
		return "", fmt.Errorf("%w: no receiver", ErrInvalidRequest)
	}
	switch req.Audience.IDType {
	case audience.OpenID, audience.ChatID:
	default:
		return "", fmt.Errorf("%w: receiver id type %q", ErrInvalidRequest, req.Audience.IDType)
	}
	return s.api.SendMessage(ctx, req.Audience.IDType.String(), req.Audience.ID, msgType, req.Content)
}

// Deliver sends req and records the outcome. Failures are logged and swallowed.
func (s *Sender) Deliver(ctx context.Context, req cards.SendRequest) Result {
	res := Result{Request: req}
	msgID, err := s.Send(ctx, req)
	if err != nil {
		res.Error = err.Error()
		fields := map[string]interface{}{
			"event_id": req.EventID,
			"msg_type": string(req.MsgKind),
			"to":       req.Audience.ID,
			"reply_to": req.ReplyTo,
			"error":    err.Error(),
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			res.Code = apiErr.Code
			res.RequestID = apiErr.RequestID
			fields["code"] = apiErr.Code
			fields["msg"] = apiErr.Msg
			fields["request_id"] = apiErr.RequestID
		}
		logger.ErrorCF("sender", "Send failed", fields)
		s.publish(bus.EventSendFailed, res)
		return res
	}

	res.MessageID = msgID
	logger.DebugCF("sender", "Message sent", map[string]interface{}{
		"event_id":   req.EventID,
		"message_id": msgID,
	})
	s.publish(bus.EventSendOK, res)
	return res
}

func (s *Sender) publish(eventType string, res Result) {
	if s.bus == nil {
		return
	}
	s.bus.PublishSystem(bus.SystemEvent{Type: eventType, Source: "sender", Data: res})
}

// Run drains the bus until ctx is done or the bus is closed and empty.
// A sender built without a bus has nothing to drain and returns at once.
func (s *Sender) Run(ctx context.Context) {
	if s.bus == nil {
		logger.WarnC("sender", "Sender worker has no queue to drain")
		return
	}
	logger.InfoC("sender", "Sender worker started")
	defer logger.InfoC("sender", "Sender worker stopped")
	for {
		req, ok := s.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		s.Deliver(ctx, req)
	}
}

func requestID(resp *larkcore.ApiResp) string {
	if resp == nil {
		return ""
	}
	return resp.RequestId()
}
