package sender

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Messenger is the slice of the messaging API the sender needs.
type Messenger interface {
	// SendMessage creates a new message for receiveID in the idType id space.
	SendMessage(ctx context.Context, idType, receiveID, msgType, content string) (string, error)
	// ReplyMessage replies in-thread to messageID.
	ReplyMessage(ctx context.Context, messageID, msgType, content string) (string, error)
}

// APIError is a non-success response from the messaging API.
type APIError struct {
	Op        string
	Code      int
	Msg       string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code=%d msg=%s request_id=%s", e.Op, e.Code, e.Msg, e.RequestID)
}

type sdkMessenger struct {
	client *lark.Client
}

// NewSDKMessenger wraps a Lark client's im/v1 message API.
func NewSDKMessenger(client *lark.Client) Messenger {
	return &sdkMessenger{client: client}
}

func (m *sdkMessenger) SendMessage(ctx context.Context, idType, receiveID, msgType, content string) (string, error) {
	resp, err := m.client.Im.Message.Create(ctx, larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(idType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			MsgType(msgType).
			ReceiveId(receiveID).
			Content(content).
			Build()).
		Build())
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "create message", Code: resp.Code, Msg: resp.Msg, RequestID: requestID(resp.ApiResp)}
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", nil
	}
	return *resp.Data.MessageId, nil
}

func (m *sdkMessenger) ReplyMessage(ctx context.Context, messageID, msgType, content string) (string, error) {
	resp, err := m.client.Im.Message.Reply(ctx, larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Build()).
		Build())
	if err != nil {
		return "", fmt.Errorf("reply message: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "reply message", Code: resp.Code, Msg: resp.Msg, RequestID: requestID(resp.ApiResp)}
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", nil
	}
	return *resp.Data.MessageId, nil
}
