// Package app is the composition root. It builds every component from the
// loaded configuration once at startup and passes them to each other
// explicitly; nothing is held in package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sipeed/cardbot/pkg/actions"
	"github.com/sipeed/cardbot/pkg/api"
	"github.com/sipeed/cardbot/pkg/bus"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/config"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/profiles"
	"github.com/sipeed/cardbot/pkg/router"
	"github.com/sipeed/cardbot/pkg/schedule"
	"github.com/sipeed/cardbot/pkg/sender"
)

// drainTimeout bounds how long shutdown waits for queued sends.
const drainTimeout = 5 * time.Second

// Transport delivers events to the router until ctx ends.
type Transport interface {
	Start(ctx context.Context) error
}

// Container holds every wired component.
type Container struct {
	Config   *config.Config
	Profile  *profiles.Profile
	Bus      *bus.MessageBus
	Resolver *actions.Resolver
	Router   *router.Router
	Sender   *sender.Sender

	// Optional components; nil when not configured.
	Monitor *api.Server
	Alarms  *schedule.Alarms
}

// Option tweaks container construction.
type Option func(*options)

type options struct {
	routerOpts   []router.Option
	resolverOpts []actions.Option
}

// WithRouterOptions passes extra options to the router.
func WithRouterOptions(opts ...router.Option) Option {
	return func(o *options) { o.routerOpts = append(o.routerOpts, opts...) }
}

// WithResolverOptions passes extra options to the card action resolver.
func WithResolverOptions(opts ...actions.Option) Option {
	return func(o *options) { o.resolverOpts = append(o.resolverOpts, opts...) }
}

// LoadProfile picks the configured bot family from the builtin profiles and
// any profiles in PROFILES_DIR.
func LoadProfile(cfg config.BotConfig) (*profiles.Profile, error) {
	reg, err := profiles.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("builtin profiles: %w", err)
	}
	if cfg.ProfilesDir != "" {
		n, errs := reg.Load(cfg.ProfilesDir)
		for _, e := range errs {
			logger.WarnCF("app", "Profile load warning", map[string]interface{}{"error": e.Error()})
		}
		logger.InfoCF("app", "Profiles loaded", map[string]interface{}{
			"dir":   cfg.ProfilesDir,
			"count": n,
		})
	}
	return reg.Get(cfg.Family)
}

// TemplateIDs maps card configuration to template ids.
func TemplateIDs(cfg config.CardConfig) cards.TemplateIDs {
	return cards.TemplateIDs{
		Welcome:   cfg.Welcome,
		Alarm:     cfg.Alarm,
		Resolved:  cfg.Resolved,
		Approving: cfg.Approving,
		Approved:  cfg.Approved,
	}
}

// NewContainer wires the bot for cfg, delivering sends through msgr.
func NewContainer(cfg *config.Config, msgr sender.Messenger, opts ...Option) (*Container, error) {
	if cfg == nil || msgr == nil {
		return nil, errors.New("app: config and messenger are required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	profile, err := LoadProfile(cfg.Bot)
	if err != nil {
		return nil, fmt.Errorf("bot family %q: %w", cfg.Bot.Family, err)
	}

	c := &Container{
		Config:  cfg,
		Profile: profile,
		Bus:     bus.NewMessageBus(cfg.Bot.OutboundBuffer),
	}
	c.Resolver = actions.NewResolver(TemplateIDs(cfg.Cards), profile.ActionNames(), o.resolverOpts...)

	routerOpts := append([]router.Option{router.WithObserver(dispatchPublisher{c.Bus})}, o.routerOpts...)
	c.Router, err = router.New(profile, c.Resolver, c.Bus, routerOpts...)
	if err != nil {
		return nil, err
	}
	c.Sender = sender.New(msgr, c.Bus)

	if cfg.Monitor.Addr != "" {
		c.Monitor = api.NewServer(cfg.Monitor, c.Router, c.Bus, profile)
	}

	if cfg.Schedule.AlarmCron != "" {
		if !c.Resolver.Allows(actions.CompleteAlarm) {
			logger.WarnCF("app", "ALARM_SCHEDULE ignored, family cannot resolve alarms", map[string]interface{}{
				"family": profile.Name,
			})
		} else if c.Alarms, err = schedule.New(cfg.Schedule.AlarmCron, cfg.Schedule.ChatIDs, c.Resolver, c.Bus); err != nil {
			return nil, fmt.Errorf("alarm schedule: %w", err)
		}
	}

	logger.InfoCF("app", "Bot wired", map[string]interface{}{
		"family":   profile.Name,
		"kinds":    len(profile.Handlers),
		"monitor":  c.Monitor != nil,
		"schedule": c.Alarms != nil,
	})
	return c, nil
}

// dispatchPublisher mirrors every dispatch outcome onto the bus.
type dispatchPublisher struct {
	bus *bus.MessageBus
}

func (p dispatchPublisher) Observe(o router.Outcome) {
	p.bus.PublishSystem(bus.SystemEvent{Type: bus.EventDispatch, Source: "router", Data: o})
}

// Run starts the background components, then blocks on the transport. When
// the transport returns, queued sends are drained for a bounded time.
func (c *Container) Run(ctx context.Context, t Transport) error {
	senderCtx, stopSender := context.WithCancel(context.Background())
	defer stopSender()
	senderDone := make(chan struct{})
	go func() {
		c.Sender.Run(senderCtx)
		close(senderDone)
	}()

	if c.Monitor != nil {
		if err := c.Monitor.Start(ctx); err != nil {
			logger.ErrorCF("app", "Monitor not started", map[string]interface{}{"error": err.Error()})
		}
		defer c.Monitor.Stop()
	}
	if c.Alarms != nil {
		go c.Alarms.Run(ctx)
	}

	err := t.Start(ctx)

	c.Bus.Close()
	select {
	case <-senderDone:
	case <-time.After(drainTimeout):
		logger.WarnCF("app", "Shutdown with sends still queued", map[string]interface{}{
			"pending": c.Bus.Pending(),
		})
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
