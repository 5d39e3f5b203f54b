// Package profiles — YAML-defined bot families.
//
// A profile binds each event kind a bot cares about to exactly one reaction
// and names the card actions the bot understands. Profiles are loaded once at
// startup and never change afterwards.
//
// Sources, later ones overriding earlier ones by name:
//  1. Builtin profiles compiled into the binary (echo, alarm, approval)
//  2. *.yaml files in PROFILES_DIR, when set
package profiles

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sipeed/cardbot/pkg/actions"
	"github.com/sipeed/cardbot/pkg/events"
)

// ─────────────────────────────────────────────────────────────────────────────
// Profile schema
// ─────────────────────────────────────────────────────────────────────────────

// Reaction is what the router does for an event kind.
type Reaction string

const (
	ReactWelcomeCard   Reaction = "welcome_card"   // send the welcome card to the operator
	ReactApprovingCard Reaction = "approving_card" // send the approval-pending card
	ReactAlarmCard     Reaction = "alarm_card"     // raise an alarm card
	ReactEcho          Reaction = "echo"           // echo the received text back
	ReactCardActions   Reaction = "card_actions"   // resolve a card action synchronously
)

func (r Reaction) valid() bool {
	switch r {
	case ReactWelcomeCard, ReactApprovingCard, ReactAlarmCard, ReactEcho, ReactCardActions:
		return true
	}
	return false
}

// Profile is the YAML schema for one bot family.
type Profile struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	Handlers map[events.Kind]Reaction `yaml:"handlers" json:"handlers"`
	// MenuKey is the menu event_key that triggers the menu reaction.
	MenuKey string   `yaml:"menu_key,omitempty" json:"menu_key,omitempty"`
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Source metadata (set by loader, not in YAML)
	SourceFile string `yaml:"-" json:"source_file,omitempty"`
	Builtin    bool   `yaml:"-" json:"builtin"`
}

// ActionNames returns the profile's actions as typed names.
func (p *Profile) ActionNames() []actions.Name {
	out := make([]actions.Name, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, actions.ParseName(a))
	}
	return out
}

// Kinds returns the registered event kinds, sorted.
func (p *Profile) Kinds() []events.Kind {
	out := make([]events.Kind, 0, len(p.Handlers))
	for k := range p.Handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// ProfileError is a typed error for profile validation.
type ProfileError string

func (e ProfileError) Error() string { return string(e) }

const (
	ErrNoName          ProfileError = "profile has no 'name' field"
	ErrNoHandlers      ProfileError = "profile registers no event kinds"
	ErrUnknownKind     ProfileError = "profile registers an unknown event kind"
	ErrUnknownReaction ProfileError = "profile uses an unknown reaction"
	ErrBadBinding      ProfileError = "reaction cannot handle this event kind"
	ErrNoMenuKey       ProfileError = "menu reaction requires 'menu_key'"
	ErrNoActions       ProfileError = "card_actions reaction requires 'actions'"
	ErrUnknownAction   ProfileError = "profile lists an unknown card action"
	ErrNotFound        ProfileError = "profile not found"
)

// Validate checks the profile's bindings. Every kind maps to exactly one
// reaction by construction; this checks each binding is meaningful.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNoName
	}
	if len(p.Handlers) == 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrNoHandlers)
	}
	for kind, reaction := range p.Handlers {
		if !kind.Valid() {
			return fmt.Errorf("%s: %q: %w", p.Name, kind, ErrUnknownKind)
		}
		if !reaction.valid() {
			return fmt.Errorf("%s: %q: %w", p.Name, reaction, ErrUnknownReaction)
		}
		if err := checkBinding(kind, reaction); err != nil {
			return fmt.Errorf("%s: %s → %s: %w", p.Name, kind, reaction, err)
		}
	}
	if _, ok := p.Handlers[events.KindMenuClick]; ok && strings.TrimSpace(p.MenuKey) == "" {
		return fmt.Errorf("%s: %w", p.Name, ErrNoMenuKey)
	}
	if p.Handlers[events.KindCardAction] == ReactCardActions {
		if len(p.Actions) == 0 {
			return fmt.Errorf("%s: %w", p.Name, ErrNoActions)
		}
		for _, a := range p.Actions {
			if actions.ParseName(a) == actions.Unknown {
				return fmt.Errorf("%s: %q: %w", p.Name, a, ErrUnknownAction)
			}
		}
	}
	return nil
}

func checkBinding(kind events.Kind, reaction Reaction) error {
	switch {
	case kind == events.KindCardAction && reaction != ReactCardActions:
		return ErrBadBinding
	case kind != events.KindCardAction && reaction == ReactCardActions:
		return ErrBadBinding
	case reaction == ReactEcho && kind != events.KindMessageReceive:
		return ErrBadBinding
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry is a thread-safe store of loaded profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// NewDefaultRegistry returns a registry holding the builtin profiles.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if _, errs := r.loadFS(builtinFS, "builtin", true); len(errs) > 0 {
		return nil, errs[0]
	}
	return r, nil
}

// Load reads all *.yaml files from dir and registers them.
// Errors in individual files are collected but don't abort loading.
func (r *Registry) Load(dir string) (int, []error) {
	return r.loadFS(os.DirFS(dir), ".", false)
}

func (r *Registry) loadFS(fsys fs.FS, dir string, builtin bool) (int, []error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, []error{fmt.Errorf("cannot read profile dir %s: %w", dir, err)}
	}

	loaded := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.ToSlash(filepath.Join(dir, e.Name()))
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", e.Name(), err))
			continue
		}
		p, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", e.Name(), err))
			continue
		}
		p.SourceFile = path
		p.Builtin = builtin
		r.Register(p)
		loaded++
	}
	return loaded, errs
}

// Parse decodes and validates a single YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Register adds or replaces a profile.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
}

// Get retrieves a profile by name.
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return p, nil
}

// List returns all registered profiles, sorted by name.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered profiles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
