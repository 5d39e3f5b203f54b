package actions

import (
	"reflect"
	"testing"
	"time"

	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
)

var testTemplates = cards.TemplateIDs{
	Welcome:   "tpl_welcome",
	Alarm:     "tpl_alarm",
	Resolved:  "tpl_resolved",
	Approving: "tpl_approving",
	Approved:  "tpl_approved",
}

var fixedNow = time.Date(2025, 6, 1, 12, 30, 45, 0, time.Local)

func newTestResolver(allowed ...Name) *Resolver {
	if len(allowed) == 0 {
		allowed = All()
	}
	return NewResolver(testTemplates, allowed, WithClock(func() time.Time { return fixedNow }))
}

func action(name interface{}, extra map[string]interface{}, form map[string]interface{}) events.CardAction {
	value := map[string]interface{}{"action": name}
	for k, v := range extra {
		value[k] = v
	}
	return events.CardAction{OperatorOpenID: "ou_123", Value: value, FormValue: form}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in   interface{}
		want Name
	}{
		{"send_alarm", SendAlarm},
		{"complete_alarm", CompleteAlarm},
		{"confirm_approval", ConfirmApproval},
		{"Send_Alarm", Unknown},
		{"", Unknown},
		{nil, Unknown},
		{42.0, Unknown},
		{map[string]interface{}{"action": "send_alarm"}, Unknown},
	}
	for _, tt := range tests {
		if got := ParseName(tt.in); got != tt.want {
			t.Errorf("ParseName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnmatchedActionsLeaveCardUnchanged(t *testing.T) {
	r := newTestResolver()
	inputs := []events.CardAction{
		action("reject_approval", nil, nil),
		action(nil, nil, nil),
		action(7, nil, nil),
		action([]interface{}{"send_alarm"}, nil, nil),
		{OperatorOpenID: "ou_1"},
	}
	for i, ev := range inputs {
		res := r.Resolve(ev)
		if !res.Response.IsEmpty() || res.Notify != nil {
			t.Errorf("input %d: expected empty resolution, got %+v", i, res)
		}
	}
}

func TestActionsOutsideFamilyAreUnmatched(t *testing.T) {
	r := newTestResolver(ConfirmApproval)
	res := r.Resolve(action("complete_alarm", map[string]interface{}{"time": "x"}, nil))
	if !res.Response.IsEmpty() || res.Notify != nil {
		t.Fatalf("approval resolver should ignore complete_alarm, got %+v", res)
	}
	if r.Allows(CompleteAlarm) || !r.Allows(ConfirmApproval) {
		t.Fatal("allow set mismatch")
	}
}

func TestSendAlarmNotifiesWithoutChangingCard(t *testing.T) {
	res := newTestResolver().Resolve(action("send_alarm", nil, nil))
	if !res.Response.IsEmpty() {
		t.Fatalf("send_alarm should keep the welcome card, got %+v", res.Response)
	}
	if res.Notify == nil {
		t.Fatal("expected an alarm card to notify")
	}
	if res.Notify.TemplateID() != "tpl_alarm" {
		t.Errorf("template = %q", res.Notify.TemplateID())
	}
	if v, _ := res.Notify.Variable("alarm_time"); v != "2025-06-01 12:30:45" {
		t.Errorf("alarm_time = %v", v)
	}
}

func TestCompleteAlarm(t *testing.T) {
	tests := []struct {
		name      string
		form      map[string]interface{}
		wantNotes string
	}{
		{"absent form", nil, ""},
		{"empty form", map[string]interface{}{}, ""},
		{"notes given", map[string]interface{}{"notes_input": "checked"}, "checked"},
		{"null notes", map[string]interface{}{"notes_input": nil}, ""},
		{"non-string notes", map[string]interface{}{"notes_input": 3.5}, "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestResolver().Resolve(action("complete_alarm", map[string]interface{}{"time": "2025-05-31 08:00:00"}, tt.form))
			if res.Response.Card == nil {
				t.Fatal("expected a resolved card")
			}
			card := res.Response.Card
			if card.TemplateID() != "tpl_resolved" {
				t.Errorf("template = %q", card.TemplateID())
			}
			want := cards.Variables{
				"alarm_time":    "2025-05-31 08:00:00",
				"open_id":       "ou_123",
				"complete_time": "2025-06-01 12:30:45",
				"notes":         tt.wantNotes,
			}
			if got := card.Variables(); !reflect.DeepEqual(got, want) {
				t.Errorf("variables = %v, want %v", got, want)
			}
			toast := res.Response.Toast
			if toast == nil {
				t.Fatal("expected a toast")
			}
			if toast.Severity() != cards.SeverityInfo || toast.Content() != "已处理完成！" {
				t.Errorf("toast = %+v", toast)
			}
			if loc := toast.Localized(); len(loc) != 2 || loc["en_us"] != "Resolved!" || loc["zh_cn"] != "已处理完成！" {
				t.Errorf("localized = %v", loc)
			}
			if res.Notify != nil {
				t.Error("complete_alarm should not notify")
			}
		})
	}
}

func TestCompleteAlarmPassesTimeThroughUntouched(t *testing.T) {
	// Whatever the alarm card attached is carried forward, never recomputed.
	for _, raw := range []interface{}{"2020-02-02 02:02:02", "not a time", 1700000000.0} {
		res := newTestResolver().Resolve(action("complete_alarm", map[string]interface{}{"time": raw}, nil))
		if got, _ := res.Response.Card.Variable("alarm_time"); got != raw {
			t.Errorf("alarm_time = %v, want %v", got, raw)
		}
	}

	res := newTestResolver().Resolve(action("complete_alarm", nil, nil))
	if got, _ := res.Response.Card.Variable("alarm_time"); got != "" {
		t.Errorf("missing time should become empty string, got %v", got)
	}
}

func TestConfirmApproval(t *testing.T) {
	res := newTestResolver().Resolve(action("confirm_approval", nil, map[string]interface{}{"notes_input": "ok"}))
	card := res.Response.Card
	if card == nil {
		t.Fatal("expected an approved card")
	}
	if card.TemplateID() != "tpl_approved" {
		t.Errorf("template = %q", card.TemplateID())
	}
	if ids, _ := card.Variable("user_ids"); !reflect.DeepEqual(ids, []string{"ou_123"}) {
		t.Errorf("user_ids = %v", ids)
	}
	if notes, _ := card.Variable("notes"); notes != "ok" {
		t.Errorf("notes = %v", notes)
	}
	if toast := res.Response.Toast; toast == nil || toast.Content() != "Approved!" {
		t.Fatalf("toast = %+v", toast)
	}
	loc := res.Response.Toast.Localized()
	if len(loc) != 2 || loc["zh_cn"] != "已通过" || loc["en_us"] != "Approved!" {
		t.Errorf("localized = %v", loc)
	}
}

func TestConfirmApprovalWithoutForm(t *testing.T) {
	res := newTestResolver().Resolve(action("confirm_approval", nil, nil))
	if notes, _ := res.Response.Card.Variable("notes"); notes != "" {
		t.Errorf("notes = %v, want empty", notes)
	}
}

func TestCardBuilders(t *testing.T) {
	r := newTestResolver()
	if c := r.WelcomeCard("ou_9"); c.TemplateID() != "tpl_welcome" {
		t.Errorf("welcome template = %q", c.TemplateID())
	} else if v, _ := c.Variable("open_id"); v != "ou_9" {
		t.Errorf("welcome open_id = %v", v)
	}
	c := r.ApprovingCard("ou_9")
	if ids, _ := c.Variable("user_ids"); !reflect.DeepEqual(ids, []string{"ou_9"}) {
		t.Errorf("approving user_ids = %v", ids)
	}
}
