package profiles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sipeed/cardbot/pkg/actions"
	"github.com/sipeed/cardbot/pkg/events"
)

func TestBuiltinProfiles(t *testing.T) {
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	if r.Count() != 3 {
		t.Fatalf("expected 3 builtin profiles, got %d", r.Count())
	}

	tests := []struct {
		name    string
		kinds   []events.Kind
		menuKey string
		actions []actions.Name
	}{
		{
			name:    "alarm",
			kinds:   []events.Kind{events.KindMenuClick, events.KindCardAction, events.KindChatEntered, events.KindMessageReceive},
			menuKey: "send_alarm",
			actions: []actions.Name{actions.SendAlarm, actions.CompleteAlarm},
		},
		{
			name:    "approval",
			kinds:   []events.Kind{events.KindMenuClick, events.KindCardAction, events.KindChatEntered},
			menuKey: "start_approval",
			actions: []actions.Name{actions.ConfirmApproval},
		},
		{
			name:    "echo",
			kinds:   []events.Kind{events.KindMessageReceive},
			actions: []actions.Name{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Get(tt.name)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !p.Builtin {
				t.Error("expected Builtin to be set")
			}
			kinds := p.Kinds()
			if len(kinds) != len(tt.kinds) {
				t.Fatalf("kinds = %v, want %v", kinds, tt.kinds)
			}
			for i := range kinds {
				if kinds[i] != tt.kinds[i] {
					t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], tt.kinds[i])
				}
			}
			if p.MenuKey != tt.menuKey {
				t.Errorf("menu key = %q, want %q", p.MenuKey, tt.menuKey)
			}
			got := p.ActionNames()
			if len(got) != len(tt.actions) {
				t.Fatalf("actions = %v, want %v", got, tt.actions)
			}
			for i := range got {
				if got[i] != tt.actions[i] {
					t.Errorf("actions[%d] = %q, want %q", i, got[i], tt.actions[i])
				}
			}
		})
	}
}

func TestParseRejectsBadProfiles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"no name", "handlers:\n  im.message.receive_v1: echo\n", ErrNoName},
		{"no handlers", "name: x\n", ErrNoHandlers},
		{"unknown kind", "name: x\nhandlers:\n  im.message.recalled_v1: echo\n", ErrUnknownKind},
		{"unknown reaction", "name: x\nhandlers:\n  im.message.receive_v1: shout\n", ErrUnknownReaction},
		{"echo on menu", "name: x\nmenu_key: k\nhandlers:\n  application.bot.menu_v6: echo\n", ErrBadBinding},
		{"card on action", "name: x\nhandlers:\n  card.action.trigger: alarm_card\n", ErrBadBinding},
		{"actions on message", "name: x\nhandlers:\n  im.message.receive_v1: card_actions\n", ErrBadBinding},
		{"menu without key", "name: x\nhandlers:\n  application.bot.menu_v6: alarm_card\n", ErrNoMenuKey},
		{"no actions", "name: x\nhandlers:\n  card.action.trigger: card_actions\n", ErrNoActions},
		{"unknown action", "name: x\nhandlers:\n  card.action.trigger: card_actions\nactions: [reject]\n", ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Parse([]byte("name: [unclosed")); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestLoadDirOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	custom := "name: echo\ndisplay_name: Loud echo\nhandlers:\n  im.message.receive_v1: echo\n"
	if err := os.WriteFile(filepath.Join(dir, "echo.yaml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	n, errs := r.Load(dir)
	if n != 1 {
		t.Errorf("loaded = %d, want 1", n)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrNoHandlers) {
		t.Errorf("errs = %v", errs)
	}

	p, err := r.Get("echo")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Loud echo" || p.Builtin {
		t.Errorf("expected user profile to override builtin, got %+v", p)
	}
	if r.Count() != 3 {
		t.Errorf("count = %d, want 3", r.Count())
	}
}

func TestGetMissing(t *testing.T) {
	if _, err := NewRegistry().Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadMissingDir(t *testing.T) {
	n, errs := NewRegistry().Load(filepath.Join(t.TempDir(), "absent"))
	if n != 0 || len(errs) != 1 {
		t.Fatalf("n=%d errs=%v", n, errs)
	}
}
