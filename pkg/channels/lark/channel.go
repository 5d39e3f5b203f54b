// Package lark connects cardbot to the open platform over the SDK's long
// connection and hands typed events to the router.
package lark

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkapplication "github.com/larksuite/oapi-sdk-go/v3/service/application/v6"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/sipeed/cardbot/pkg/config"
	"github.com/sipeed/cardbot/pkg/events"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/router"
)

// Dispatcher is the router as seen by the transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) router.Outcome
}

// NewClient builds the REST client used for sends.
func NewClient(cfg config.LarkConfig) *lark.Client {
	var opts []lark.ClientOptionFunc
	if domain := strings.TrimSpace(cfg.BaseDomain); domain != "" {
		opts = append(opts, lark.WithOpenBaseUrl(domain))
	}
	opts = append(opts,
		lark.WithLogger(logger.LarkAdapter()),
		lark.WithLogLevel(logger.LarkLevel()),
	)
	return lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}

// Channel owns the long connection.
type Channel struct {
	cfg     config.LarkConfig
	handler *dispatcher.EventDispatcher
}

// NewChannel registers every event kind the SDK can deliver. Kinds the bot's
// profile does not register resolve to a no-op in the router.
func NewChannel(cfg config.LarkConfig, d Dispatcher) *Channel {
	return &Channel{cfg: cfg, handler: NewEventHandler(cfg, d)}
}

// NewEventHandler builds the SDK dispatcher that converts events and calls d.
func NewEventHandler(cfg config.LarkConfig, d Dispatcher) *dispatcher.EventDispatcher {
	return dispatcher.NewEventDispatcher(cfg.VerificationToken, cfg.EncryptKey).
		OnP2ChatAccessEventBotP2pChatEnteredV1(func(ctx context.Context, ev *larkim.P2ChatAccessEventBotP2pChatEnteredV1) error {
			return handle(ctx, d, func() (events.Event, error) { return ChatEnteredFromSDK(ev) })
		}).
		OnP2BotMenuV6(func(ctx context.Context, ev *larkapplication.P2BotMenuV6) error {
			return handle(ctx, d, func() (events.Event, error) { return MenuClickFromSDK(ev) })
		}).
		OnP2MessageReceiveV1(func(ctx context.Context, ev *larkim.P2MessageReceiveV1) error {
			return handle(ctx, d, func() (events.Event, error) { return MessageReceiveFromSDK(ev) })
		}).
		OnP2CardActionTrigger(func(ctx context.Context, ev *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
			return trigger(ctx, d, ev), nil
		})
}

// handle runs one non-trigger event. Errors and panics stay with the event:
// the SDK always sees success so the connection is never torn down.
func handle(ctx context.Context, d Dispatcher, convert func() (events.Event, error)) (err error) {
	defer recoverEvent("event")
	ev, err := convert()
	if err != nil {
		logger.WarnCF("lark", "Dropping undecodable event", map[string]interface{}{"error": err.Error()})
		return nil
	}
	d.Dispatch(ctx, ev)
	return nil
}

// trigger answers a card action synchronously. Anything but a trigger
// outcome leaves the card unchanged.
func trigger(ctx context.Context, d Dispatcher, sdkEv *callback.CardActionTriggerEvent) (resp *callback.CardActionTriggerResponse) {
	resp = &callback.CardActionTriggerResponse{}
	defer recoverEvent("card action")

	ev, err := CardActionFromSDK(sdkEv)
	if err != nil {
		logger.WarnCF("lark", "Dropping undecodable card action", map[string]interface{}{"error": err.Error()})
		return resp
	}
	o := d.Dispatch(ctx, ev)
	if o.Kind != router.OutcomeTrigger {
		return resp
	}
	return o.Response.Wire()
}

func recoverEvent(what string) {
	if r := recover(); r != nil {
		logger.ErrorCF("lark", "Recovered from panic in "+what+" handler", map[string]interface{}{
			"panic": fmt.Sprint(r),
			"stack": string(debug.Stack()),
		})
	}
}

// Start opens the long connection and blocks until ctx is done or the
// connection fails permanently.
func (c *Channel) Start(ctx context.Context) error {
	opts := []larkws.ClientOption{
		larkws.WithEventHandler(c.handler),
		larkws.WithLogLevel(logger.LarkLevel()),
		larkws.WithLogger(logger.LarkAdapter()),
	}
	if domain := strings.TrimSpace(c.cfg.BaseDomain); domain != "" {
		opts = append(opts, larkws.WithDomain(domain))
	}
	cli := larkws.NewClient(c.cfg.AppID, c.cfg.AppSecret, opts...)

	logger.InfoCF("lark", "Connecting long connection", map[string]interface{}{
		"app_id": c.cfg.AppID,
		"domain": c.cfg.BaseDomain,
	})
	if err := cli.Start(ctx); err != nil {
		return fmt.Errorf("lark long connection: %w", err)
	}
	return nil
}
