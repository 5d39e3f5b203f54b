// Package schedule raises alarm cards on a cron schedule.
//
// Each tick sends a fresh alarm card to every configured chat. The cards are
// the same ones a menu click raises, so they resolve through the normal
// complete_alarm card action.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/cardbot/pkg/audience"
	"github.com/sipeed/cardbot/pkg/bus"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/logger"
)

// Publisher is where scheduled sends and tick notifications go.
type Publisher interface {
	PublishOutbound(req cards.SendRequest) bool
	PublishSystem(event bus.SystemEvent)
}

// CardSource builds the alarm card for a tick.
type CardSource interface {
	AlarmCard() cards.CardState
}

var (
	ErrInvalidExpr = errors.New("invalid cron expression")
	ErrNoChats     = errors.New("no chats to alarm")
)

// Tick is published as a system event after every fire.
type Tick struct {
	Expr  string   `json:"expr"`
	At    string   `json:"at"`
	Chats []string `json:"chats"`
	Sent  int      `json:"sent"`
}

// Alarms fires alarm cards to a fixed set of chats.
type Alarms struct {
	expr    string
	chatIDs []string
	cards   CardSource
	out     Publisher
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) bool
}

// New validates expr and returns a scheduler for chatIDs.
func New(expr string, chatIDs []string, src CardSource, out Publisher) (*Alarms, error) {
	expr = strings.TrimSpace(expr)
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpr, expr)
	}
	if len(chatIDs) == 0 {
		return nil, ErrNoChats
	}
	return &Alarms{
		expr:    expr,
		chatIDs: append([]string(nil), chatIDs...),
		cards:   src,
		out:     out,
		now:     time.Now,
		wait:    sleep,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Next returns the first tick strictly after ref.
func (a *Alarms) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(a.expr, ref, false)
}

// Run fires on every tick until ctx is done.
func (a *Alarms) Run(ctx context.Context) {
	logger.InfoCF("schedule", "Alarm schedule started", map[string]interface{}{
		"expr":  a.expr,
		"chats": len(a.chatIDs),
	})
	for {
		next, err := a.Next(a.now())
		if err != nil {
			logger.ErrorCF("schedule", "Cannot compute next tick", map[string]interface{}{
				"expr":  a.expr,
				"error": err.Error(),
			})
			return
		}
		if !a.wait(ctx, time.Until(next)) {
			logger.InfoC("schedule", "Alarm schedule stopped")
			return
		}
		a.Fire()
	}
}

// Fire sends one alarm card to every chat and reports how many were queued.
func (a *Alarms) Fire() int {
	card := a.cards.AlarmCard()
	sent := 0
	for _, chatID := range a.chatIDs {
		req, err := cards.NewCardSend(audience.Chat(chatID), card)
		if err != nil {
			logger.ErrorCF("schedule", "Cannot build alarm card", map[string]interface{}{"error": err.Error()})
			return sent
		}
		req.EventID = "schedule:" + cards.FormatTime(a.now())
		if a.out.PublishOutbound(req) {
			sent++
		}
	}
	a.out.PublishSystem(bus.SystemEvent{
		Type:   bus.EventScheduled,
		Source: "schedule",
		Data: Tick{
			Expr:  a.expr,
			At:    cards.FormatTime(a.now()),
			Chats: a.chatIDs,
			Sent:  sent,
		},
	})
	logger.InfoCF("schedule", "Scheduled alarm fired", map[string]interface{}{"sent": sent})
	return sent
}
