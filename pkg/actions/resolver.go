package actions

import (
	"time"

	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
)

// Resolution is what a card action produces.
type Resolution struct {
	// Response is returned synchronously; empty leaves the card as rendered.
	Response cards.TriggerResponse
	// Notify, when set, is a card to deliver to the operator as a new message.
	// It is sent fire-and-forget so the trigger response never waits on it.
	Notify *cards.CardState
}

// Resolver maps action names to card transitions. It holds no mutable state
// and is safe for concurrent use.
type Resolver struct {
	templates cards.TemplateIDs
	allowed   map[Name]bool
	now       func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source used for alarm_time and complete_time.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver that only reacts to the given actions.
func NewResolver(templates cards.TemplateIDs, allowed []Name, opts ...Option) *Resolver {
	r := &Resolver{
		templates: templates,
		allowed:   make(map[Name]bool, len(allowed)),
		now:       time.Now,
	}
	for _, n := range allowed {
		if n != Unknown {
			r.allowed[n] = true
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allows reports whether the resolver reacts to n.
func (r *Resolver) Allows(n Name) bool { return r.allowed[n] }

// Resolve evaluates the transition table. Unmatched actions resolve to an
// empty Resolution, which is not an error.
func (r *Resolver) Resolve(ev events.CardAction) Resolution {
	p := Decode(ev)
	if !r.allowed[p.Name] {
		return Resolution{}
	}

	switch p.Name {
	case SendAlarm:
		alarm := r.AlarmCard()
		return Resolution{Notify: &alarm}

	case CompleteAlarm:
		card := cards.NewCardState(r.templates.Resolved, cards.Variables{
			"alarm_time":    p.AlarmTime,
			"open_id":       p.OperatorOpenID,
			"complete_time": cards.FormatTime(r.now()),
			"notes":         p.Notes,
		})
		toast := cards.NewToast(cards.SeverityInfo, "已处理完成！", "已处理完成！", "Resolved!")
		return Resolution{Response: cards.TriggerResponse{Card: &card, Toast: &toast}}

	case ConfirmApproval:
		card := cards.NewCardState(r.templates.Approved, cards.Variables{
			"user_ids": []string{p.OperatorOpenID},
			"notes":    p.Notes,
		})
		toast := cards.NewToast(cards.SeveritySuccess, "Approved!", "已通过", "Approved!")
		return Resolution{Response: cards.TriggerResponse{Card: &card, Toast: &toast}}
	}
	return Resolution{}
}

// AlarmCard builds a freshly raised alarm card stamped with the current time.
func (r *Resolver) AlarmCard() cards.CardState {
	return cards.NewCardState(r.templates.Alarm, cards.Variables{
		"alarm_time": cards.FormatTime(r.now()),
	})
}

// WelcomeCard builds the card sent when a user opens the alarm bot's chat.
func (r *Resolver) WelcomeCard(openID string) cards.CardState {
	return cards.NewCardState(r.templates.Welcome, cards.Variables{"open_id": openID})
}

// ApprovingCard builds the pending-approval card addressed to openID.
func (r *Resolver) ApprovingCard(openID string) cards.CardState {
	return cards.NewCardState(r.templates.Approving, cards.Variables{
		"user_ids": []string{openID},
	})
}
