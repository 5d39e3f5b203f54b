package router

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sipeed/cardbot/pkg/actions"
	"github.com/sipeed/cardbot/pkg/audience"
	"github.com/sipeed/cardbot/pkg/cards"
	"github.com/sipeed/cardbot/pkg/events"
	"github.com/sipeed/cardbot/pkg/profiles"
	"github.com/sipeed/cardbot/pkg/reply"
)

var templates = cards.TemplateIDs{
	Welcome:   "WELCOME_CARD_ID",
	Alarm:     "ALARM_CARD_ID",
	Resolved:  "RESOLVED_CARD_ID",
	Approving: "APPROVING_CARD_ID",
	Approved:  "APPROVED_CARD_ID",
}

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []cards.SendRequest
	closed bool
}

func (f *fakePublisher) PublishOutbound(req cards.SendRequest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, req)
	return true
}

func newRouter(t *testing.T, family string, opts ...Option) (*Router, *fakePublisher) {
	t.Helper()
	reg, err := profiles.NewDefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	p, err := reg.Get(family)
	if err != nil {
		t.Fatal(err)
	}
	res := actions.NewResolver(templates, p.ActionNames(), actions.WithClock(func() time.Time { return now }))
	pub := &fakePublisher{}
	r, err := New(p, res, pub, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return r, pub
}

func base(id string) events.Base { return events.Base{EventID: id} }

func variables(t *testing.T, req cards.SendRequest) (string, map[string]interface{}) {
	t.Helper()
	var c struct {
		Type string `json:"type"`
		Data struct {
			TemplateID       string                 `json:"template_id"`
			TemplateVariable map[string]interface{} `json:"template_variable"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(req.Content), &c); err != nil {
		t.Fatalf("card content %q: %v", req.Content, err)
	}
	return c.Data.TemplateID, c.Data.TemplateVariable
}

func TestUnregisteredKindIsNone(t *testing.T) {
	r, pub := newRouter(t, "echo")
	for _, ev := range []events.Event{
		events.ChatEntered{Base: base("e1"), OperatorOpenID: "ou_1"},
		events.MenuClick{Base: base("e2"), OperatorOpenID: "ou_1", EventKey: "send_alarm"},
		events.CardAction{Base: base("e3"), OperatorOpenID: "ou_1"},
	} {
		o := r.Dispatch(context.Background(), ev)
		if o.Kind != OutcomeNone || o.Err != nil {
			t.Errorf("%s: outcome = %+v", ev.Kind(), o)
		}
	}
	if len(pub.sent) != 0 {
		t.Errorf("unexpected sends: %+v", pub.sent)
	}
}

func TestAlarmWelcomeCard(t *testing.T) {
	r, pub := newRouter(t, "alarm")
	o := r.Dispatch(context.Background(), events.ChatEntered{Base: base("e1"), OperatorOpenID: "ou_1", ChatID: "oc_1"})
	if o.Kind != OutcomeSend || len(pub.sent) != 1 {
		t.Fatalf("outcome = %+v, sent = %d", o, len(pub.sent))
	}
	req := pub.sent[0]
	if req.Audience != audience.User("ou_1") || req.MsgKind != cards.MsgInteractive || req.EventID != "e1" {
		t.Errorf("request = %+v", req)
	}
	id, vars := variables(t, req)
	if id != "WELCOME_CARD_ID" || vars["open_id"] != "ou_1" {
		t.Errorf("card = %s %v", id, vars)
	}
}

func TestApprovalChatEnteredSendsApprovingCard(t *testing.T) {
	r, pub := newRouter(t, "approval")
	r.Dispatch(context.Background(), events.ChatEntered{Base: base("e1"), OperatorOpenID: "ou_7"})
	if len(pub.sent) != 1 {
		t.Fatalf("sent = %d", len(pub.sent))
	}
	id, vars := variables(t, pub.sent[0])
	if id != "APPROVING_CARD_ID" || !reflect.DeepEqual(vars["user_ids"], []interface{}{"ou_7"}) {
		t.Errorf("card = %s %v", id, vars)
	}
}

func TestMenuClickRequiresFamilyKey(t *testing.T) {
	tests := []struct {
		family   string
		key      string
		wantKind OutcomeKind
		wantTpl  string
	}{
		{"alarm", "send_alarm", OutcomeSend, "ALARM_CARD_ID"},
		{"alarm", "start_approval", OutcomeNone, ""},
		{"approval", "start_approval", OutcomeSend, "APPROVING_CARD_ID"},
		{"approval", "send_alarm", OutcomeNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.family+"/"+tt.key, func(t *testing.T) {
			r, pub := newRouter(t, tt.family)
			o := r.Dispatch(context.Background(), events.MenuClick{Base: base("m"), OperatorOpenID: "ou_1", EventKey: tt.key})
			if o.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", o.Kind, tt.wantKind)
			}
			if tt.wantTpl == "" {
				if len(pub.sent) != 0 {
					t.Errorf("unexpected sends %+v", pub.sent)
				}
				return
			}
			if id, _ := variables(t, pub.sent[0]); id != tt.wantTpl {
				t.Errorf("template = %s", id)
			}
		})
	}
}

func TestAlarmMessageRaisesAlarm(t *testing.T) {
	r, pub := newRouter(t, "alarm")
	r.Dispatch(context.Background(), events.MessageReceive{Base: base("g"), ChatType: "group", ChatID: "oc_9", SenderOpenID: "ou_1", MessageID: "om_1"})
	r.Dispatch(context.Background(), events.MessageReceive{Base: base("p"), ChatType: "p2p", ChatID: "oc_8", SenderOpenID: "ou_2", MessageID: "om_2"})
	if len(pub.sent) != 2 {
		t.Fatalf("sent = %d", len(pub.sent))
	}
	if pub.sent[0].Audience != audience.Chat("oc_9") {
		t.Errorf("group audience = %+v", pub.sent[0].Audience)
	}
	if pub.sent[1].Audience != audience.User("ou_2") {
		t.Errorf("p2p audience = %+v", pub.sent[1].Audience)
	}
	_, vars := variables(t, pub.sent[0])
	if vars["alarm_time"] != "2025-06-01 09:00:00" {
		t.Errorf("alarm_time = %v", vars["alarm_time"])
	}
}

func TestConfirmApprovalEndToEnd(t *testing.T) {
	r, pub := newRouter(t, "approval")
	ev, err := events.DecodeEnvelope([]byte(`{
		"kind": "card.action.trigger",
		"event": {
			"operator": {"open_id": "ou_123"},
			"action": {"value": {"action": "confirm_approval"}, "form_value": {"notes_input": "ok"}}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	o := r.Dispatch(context.Background(), ev)
	if o.Kind != OutcomeTrigger {
		t.Fatalf("kind = %s", o.Kind)
	}
	card := o.Response.Card
	if card == nil || card.TemplateID() != "APPROVED_CARD_ID" {
		t.Fatalf("card = %+v", card)
	}
	if ids, _ := card.Variable("user_ids"); !reflect.DeepEqual(ids, []string{"ou_123"}) {
		t.Errorf("user_ids = %v", ids)
	}
	if notes, _ := card.Variable("notes"); notes != "ok" {
		t.Errorf("notes = %v", notes)
	}
	if o.Response.Toast == nil || o.Response.Toast.Content() != "Approved!" {
		t.Errorf("toast = %+v", o.Response.Toast)
	}
	if len(pub.sent) != 0 {
		t.Errorf("trigger path should not send, got %+v", pub.sent)
	}
}

func TestEchoImageInP2PEndToEnd(t *testing.T) {
	r, pub := newRouter(t, "echo")
	ev, err := events.DecodeEnvelope([]byte(`{
		"kind": "im.message.receive_v1",
		"event": {
			"sender": {"sender_id": {"open_id": "ou_1"}},
			"message": {"message_id": "m1", "chat_id": "oc_1", "chat_type": "p2p",
				"message_type": "image", "content": "{\"image_key\":\"img_v2\"}"}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	o := r.Dispatch(context.Background(), ev)
	if o.Kind != OutcomeSend || len(pub.sent) != 1 {
		t.Fatalf("outcome = %+v", o)
	}
	req := pub.sent[0]
	if req.ReplyTo != "m1" {
		t.Errorf("reply to = %q", req.ReplyTo)
	}
	if req.Content != reply.Content(reply.FallbackText) {
		t.Errorf("content = %s", req.Content)
	}
}

func TestSendAlarmActionQueuesFollowUp(t *testing.T) {
	r, pub := newRouter(t, "alarm")
	o := r.Dispatch(context.Background(), events.CardAction{
		Base:           base("ca"),
		OperatorOpenID: "ou_5",
		Value:          map[string]interface{}{"action": "send_alarm"},
	})
	if o.Kind != OutcomeTrigger || !o.Response.IsEmpty() {
		t.Fatalf("outcome = %+v", o)
	}
	if len(o.Sends) != 1 || len(pub.sent) != 1 {
		t.Fatalf("expected one follow-up send, got %+v", pub.sent)
	}
	if pub.sent[0].Audience != audience.User("ou_5") {
		t.Errorf("audience = %+v", pub.sent[0].Audience)
	}
	if id, _ := variables(t, pub.sent[0]); id != "ALARM_CARD_ID" {
		t.Errorf("template = %s", id)
	}
}

func TestActionOutsideFamilyIsEmptyTrigger(t *testing.T) {
	r, _ := newRouter(t, "approval")
	o := r.Dispatch(context.Background(), events.CardAction{
		Base:           base("ca"),
		OperatorOpenID: "ou_5",
		Value:          map[string]interface{}{"action": "complete_alarm", "time": "t"},
	})
	if o.Kind != OutcomeTrigger || !o.Response.IsEmpty() {
		t.Fatalf("outcome = %+v", o)
	}
}

func TestMissingIdentityIsConfinedToEvent(t *testing.T) {
	var seen []Outcome
	r, pub := newRouter(t, "alarm", WithObserver(ObserverFunc(func(o Outcome) { seen = append(seen, o) })))
	o := r.Dispatch(context.Background(), events.ChatEntered{Base: base("e")})
	if o.Kind != OutcomeNone || !errors.Is(o.Err, audience.ErrNoReceiver) {
		t.Fatalf("outcome = %+v", o)
	}
	if len(pub.sent) != 0 {
		t.Error("nothing should be sent")
	}
	if len(seen) != 1 || seen[0].EventID != "e" {
		t.Errorf("observer saw %+v", seen)
	}
	if o := r.Dispatch(context.Background(), nil); !errors.Is(o.Err, ErrNilEvent) {
		t.Errorf("nil event outcome = %+v", o)
	}
}

func TestDispatchSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r, _ := newRouter(t, "alarm", WithTracer(tp.Tracer("test")))

	r.Dispatch(context.Background(), events.MenuClick{Base: base("m1"), OperatorOpenID: "ou_1", EventKey: "send_alarm"})

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "router.dispatch" {
		t.Fatalf("spans = %v", spans)
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"event.kind":    "application.bot.menu_v6",
		"event.id":      "m1",
		"bot.family":    "alarm",
		"outcome.kind":  "send",
		"outcome.sends": "1",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestClosedPublisherDropsSends(t *testing.T) {
	r, pub := newRouter(t, "alarm")
	pub.closed = true
	o := r.Dispatch(context.Background(), events.ChatEntered{Base: base("e"), OperatorOpenID: "ou_1"})
	if o.Kind != OutcomeSend || len(o.Sends) != 0 {
		t.Errorf("outcome = %+v", o)
	}
}

func TestOutcomeJSON(t *testing.T) {
	card := cards.NewCardState("tpl", cards.Variables{"k": "v"})
	o := Outcome{Kind: OutcomeTrigger, EventID: "e", EventKind: events.KindCardAction, Response: cards.TriggerResponse{Card: &card}}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "trigger" || got["event_id"] != "e" {
		t.Errorf("json = %s", b)
	}
	resp, ok := got["response"].(map[string]interface{})
	if !ok || resp["card"] == nil {
		t.Errorf("response missing card: %s", b)
	}

	b, _ = json.Marshal(Outcome{Kind: OutcomeNone, Err: errors.New("boom")})
	if err := json.Unmarshal(b, &got); err != nil || got["error"] != "boom" {
		t.Errorf("json = %s", b)
	}
}
