// Event bridge — wires the message bus into the WebSocket hub. Every queued
// send and every system event (dispatch outcomes, send results, scheduler
// ticks) fans out to connected clients via bus taps.
package api

import (
	"context"

	"github.com/sipeed/cardbot/pkg/bus"
	"github.com/sipeed/cardbot/pkg/logger"
)

const maxContentPreview = 200

// EventBridge connects the message bus to the WebSocket hub for live updates.
type EventBridge struct {
	bus *bus.MessageBus
	hub *WSHub
}

// NewEventBridge creates a bridge that forwards bus events to WebSocket clients.
func NewEventBridge(mb *bus.MessageBus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: mb, hub: hub}
}

// Run subscribes to the bus taps and starts the forwarding goroutines. It
// returns immediately; forwarding stops when ctx ends or the bus closes.
func (eb *EventBridge) Run(ctx context.Context) {
	if eb.bus == nil {
		return
	}
	outboundTap := eb.bus.SubscribeOutboundTap("event-bridge")
	systemTap := eb.bus.SubscribeSystem("event-bridge")

	go eb.forward(ctx, outboundTap)
	go eb.forward(ctx, systemTap)
	logger.InfoC("events", "Event bridge started")
}

func (eb *EventBridge) forward(ctx context.Context, tap <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-tap:
			if !ok {
				return
			}
			switch v := raw.(type) {
			case bus.OutboundTap:
				eb.hub.Broadcast("message.outbound", map[string]interface{}{
					"event_id":    v.Request.EventID,
					"audience":    v.Request.Audience,
					"reply_to":    v.Request.ReplyTo,
					"msg_type":    v.Request.MsgKind,
					"content":     truncate(v.Request.Content, maxContentPreview),
					"dropped_old": v.DroppedOld,
				})
			case bus.SystemEvent:
				eb.hub.Broadcast(v.Type, v.Data)
			}
		}
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "…"
}
