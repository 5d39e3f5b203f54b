// Package router dispatches decoded events to the handler the bot profile
// registered for their kind.
//
// The kind→handler table is built once in New and never changes. Sends are
// queued on the outbound publisher without blocking; card-action responses
// are computed locally and returned to the caller.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sipeed/cardbot/pkg/actions"
	"github.com/sipeed/cardbot/pkg/audience"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/profiles"
	"github.com/sipeed/cardbot/pkg/reply"
)

const tracerName = "github.com/sipeed/cardbot/pkg/router"

// Publisher queues an outbound send. It must not block.
type Publisher interface {
	PublishOutbound(req cards.SendRequest) bool
}

// Observer is told about every dispatch outcome.
type Observer interface {
	Observe(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) Observe(o Outcome) { f(o) }

// ErrNilEvent is returned in the outcome of a dispatch with no event.
var ErrNilEvent = errors.New("nil event")

type handler func(ctx context.Context, ev events.Event) (Outcome, error)

// Router maps event kinds to handlers.
type Router struct {
	profile   *profiles.Profile
	resolver  *actions.Resolver
	out       Publisher
	observers []Observer
	tracer    trace.Tracer
	handlers  map[events.Kind]handler
}

// Option configures a Router.
type Option func(*Router)

// WithObserver adds an outcome observer.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observers = append(r.observers, o) }
}

// WithTracer overrides the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// New builds the router for a profile.
func New(profile *profiles.Profile, resolver *actions.Resolver, out Publisher, opts ...Option) (*Router, error) {
	if profile == nil {
		return nil, errors.New("router: nil profile")
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	if resolver == nil || out == nil {
		return nil, errors.New("router: resolver and publisher are required")
	}
	r := &Router{
		profile:  profile,
		resolver: resolver,
		out:      out,
		tracer:   otel.Tracer(tracerName),
		handlers: make(map[events.Kind]handler, len(profile.Handlers)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for kind, reaction := range profile.Handlers {
		r.handlers[kind] = r.handlerFor(reaction)
	}
	return r, nil
}

// Profile returns the profile the router was built from.
func (r *Router) Profile() *profiles.Profile { return r.profile }

// Handles reports whether kind has a registered handler.
func (r *Router) Handles(kind events.Kind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Dispatch runs exactly one handler for ev. It never returns an error:
// failures are confined to the event and reported on the outcome.
func (r *Router) Dispatch(ctx context.Context, ev events.Event) Outcome {
	if ev == nil {
		o := Outcome{Kind: OutcomeNone, Err: ErrNilEvent}
		r.notify(o)
		return o
	}

	ctx, span := r.tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(
			attribute.String("event.kind", ev.Kind().String()),
			attribute.String("event.id", ev.ID()),
			attribute.String("bot.family", r.profile.Name),
		))
	defer span.End()

	o := r.dispatch(ctx, ev)
	o.EventID = ev.ID()
	o.EventKind = ev.Kind()

	span.SetAttributes(
		attribute.String("outcome.kind", string(o.Kind)),
		attribute.Int("outcome.sends", len(o.Sends)),
	)
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
		logger.ErrorCF("router", "Event handling failed", map[string]interface{}{
			"event_id": ev.ID(),
			"kind":     ev.Kind().String(),
			"error":    o.Err.Error(),
		})
	}

	r.notify(o)
	return o
}

func (r *Router) dispatch(ctx context.Context, ev events.Event) Outcome {
	h, ok := r.handlers[ev.Kind()]
	if !ok {
		logger.DebugCF("router", "No handler registered for kind", map[string]interface{}{
			"kind":   ev.Kind().String(),
			"family": r.profile.Name,
		})
		return Outcome{Kind: OutcomeNone}
	}
	o, err := h(ctx, ev)
	if err != nil {
		return Outcome{Kind: OutcomeNone, Err: err}
	}
	return o
}

func (r *Router) notify(o Outcome) {
	for _, obs := range r.observers {
		obs.Observe(o)
	}
}

// publish stamps and queues sends. Queueing never blocks.
func (r *Router) publish(ev events.Event, sends ...cards.SendRequest) []cards.SendRequest {
	out := make([]cards.SendRequest, 0, len(sends))
	for _, s := range sends {
		s.EventID = ev.ID()
		if !r.out.PublishOutbound(s) {
			logger.WarnCF("router", "Outbound queue closed, send dropped", map[string]interface{}{
				"event_id": ev.ID(),
				"to":       s.Audience.ID,
			})
			continue
		}
		out = append(out, s)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Reactions
// ─────────────────────────────────────────────────────────────────────────────

func (r *Router) handlerFor(reaction profiles.Reaction) handler {
	switch reaction {
	case profiles.ReactEcho:
		return r.echo
	case profiles.ReactCardActions:
		return r.cardAction
	default:
		return func(ctx context.Context, ev events.Event) (Outcome, error) {
			return r.sendCard(ev, reaction)
		}
	}
}

func (r *Router) echo(_ context.Context, ev events.Event) (Outcome, error) {
	msg, ok := ev.(events.MessageReceive)
	if !ok {
		return Outcome{}, fmt.Errorf("echo: unexpected event %T", ev)
	}
	req, err := reply.Route(msg)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeSend, Sends: r.publish(ev, req)}, nil
}

func (r *Router) sendCard(ev events.Event, reaction profiles.Reaction) (Outcome, error) {
	if menu, ok := ev.(events.MenuClick); ok && menu.EventKey != r.profile.MenuKey {
		logger.DebugCF("router", "Menu key not handled", map[string]interface{}{
			"event_key": menu.EventKey,
			"family":    r.profile.Name,
		})
		return Outcome{Kind: OutcomeNone}, nil
	}

	to, err := audience.Resolve(ev)
	if err != nil {
		return Outcome{}, err
	}

	var card cards.CardState
	switch reaction {
	case profiles.ReactWelcomeCard:
		card = r.resolver.WelcomeCard(userOf(ev))
	case profiles.ReactApprovingCard:
		card = r.resolver.ApprovingCard(userOf(ev))
	case profiles.ReactAlarmCard:
		card = r.resolver.AlarmCard()
	default:
		return Outcome{}, fmt.Errorf("unsupported reaction %q", reaction)
	}

	req, err := cards.NewCardSend(to, card)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeSend, Sends: r.publish(ev, req)}, nil
}

func (r *Router) cardAction(_ context.Context, ev events.Event) (Outcome, error) {
	ca, ok := ev.(events.CardAction)
	if !ok {
		return Outcome{}, fmt.Errorf("card action: unexpected event %T", ev)
	}
	res := r.resolver.Resolve(ca)
	o := Outcome{Kind: OutcomeTrigger, Response: res.Response}
	if res.Notify == nil {
		return o, nil
	}

	// The follow-up send is best effort; it never turns the trigger into a failure.
	to, err := audience.Resolve(ev)
	if err == nil {
		var req cards.SendRequest
		if req, err = cards.NewCardSend(to, *res.Notify); err == nil {
			o.Sends = r.publish(ev, req)
			return o, nil
		}
	}
	logger.WarnCF("router", "Follow-up card not sent", map[string]interface{}{
		"event_id": ev.ID(),
		"error":    err.Error(),
	})
	return o, nil
}

// userOf returns the open id of the user behind ev.
func userOf(ev events.Event) string {
	switch e := ev.(type) {
	case events.ChatEntered:
		return e.OperatorOpenID
	case events.MenuClick:
		return e.OperatorOpenID
	case events.CardAction:
		return e.OperatorOpenID
	case events.MessageReceive:
		return e.SenderOpenID
	}
	return ""
}
