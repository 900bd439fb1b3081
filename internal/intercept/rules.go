package intercept

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// Rule actions.
const (
	ActionDrop        = "drop"
	ActionClampHealth = "clamp_health"
	ActionLog         = "log"
)

// RuleSet is the contents of a rules file.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is one declarative hook.
//
//	rules:
//	  - name: no-teleport
//	    action: drop
//	    kinds: [Teleport]
//	    side: client
//	  - name: cap-health
//	    action: clamp_health
//	    max_life: 500
type Rule struct {
	Name   string   `yaml:"name"`
	Action string   `yaml:"action"`
	Kinds  []string `yaml:"kinds,omitempty"`
	// Side limits the rule to one direction; empty matches both.
	Side    string `yaml:"side,omitempty"`
	MaxLife int16  `yaml:"max_life,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	kinds []protocol.PacketKind
	side  *protocol.Side
}

// IsEnabled reports whether the rule is active. Rules default to enabled.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// LoadRules reads and validates a rules file. An empty path yields no rules.
func LoadRules(path string) (RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return RuleSet{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, err
	}
	rs, err := ParseRules(b)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// ParseRules decodes YAML rules and resolves kind names and sides.
func ParseRules(b []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(b, &rs); err != nil {
		return RuleSet{}, err
	}
	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[r.Name] {
			return RuleSet{}, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		if err := r.resolve(); err != nil {
			return RuleSet{}, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return rs, nil
}

func (r *Rule) resolve() error {
	r.kinds = r.kinds[:0]
	for _, name := range r.Kinds {
		k, err := protocol.ParsePacketKind(name)
		if err != nil {
			return err
		}
		r.kinds = append(r.kinds, k)
	}
	if r.Side != "" {
		s, err := protocol.ParseSide(r.Side)
		if err != nil {
			return err
		}
		r.side = &s
	}

	switch r.Action {
	case ActionDrop, ActionLog:
		if len(r.kinds) == 0 {
			return fmt.Errorf("%s needs at least one kind", r.Action)
		}
	case ActionClampHealth:
		if r.MaxLife <= 0 {
			return fmt.Errorf("max_life must be positive")
		}
		if len(r.kinds) > 0 {
			return fmt.Errorf("clamp_health applies to PlayerHealth only, kinds not allowed")
		}
		r.kinds = []protocol.PacketKind{protocol.PacketPlayerHealth}
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

func (r *Rule) matchesSide(s protocol.Side) bool {
	return r.side == nil || *r.side == s
}

func (r *Rule) hook() HookFunc {
	switch r.Action {
	case ActionDrop:
		return func(_ context.Context, ev *PacketEvent) error {
			if r.matchesSide(ev.Side) {
				ev.Cancel(r.Name)
			}
			return nil
		}
	case ActionClampHealth:
		return func(_ context.Context, ev *PacketEvent) error {
			if !r.matchesSide(ev.Side) {
				return nil
			}
			ph, ok := ev.Packet.(*protocol.PlayerHealth)
			if !ok {
				return nil
			}
			if ph.StatLifeMax > r.MaxLife {
				ph.SetLifeMax(r.MaxLife)
			}
			if ph.StatLife > r.MaxLife {
				ph.SetLife(r.MaxLife)
			}
			return nil
		}
	}
	return nil
}

// Install registers every enabled rule as a hook and returns how many were
// installed.
func (rs RuleSet) Install(i *Interceptor) int {
	n := 0
	for idx := range rs.Rules {
		r := &rs.Rules[idx]
		if !r.IsEnabled() {
			continue
		}
		fn := r.hook()
		if r.Action == ActionLog {
			fn = r.logHook(i)
		}
		for _, k := range r.kinds {
			i.Handle(k, "rule:"+r.Name, fn)
		}
		n++
	}
	return n
}

func (r *Rule) logHook(i *Interceptor) HookFunc {
	return func(_ context.Context, ev *PacketEvent) error {
		if !r.matchesSide(ev.Side) {
			return nil
		}
		i.logger.Info().
			Str("rule", r.Name).
			Str("kind", ev.Packet.Kind().String()).
			Str("side", ev.Side.String()).
			Int("size", len(ev.Raw)).
			Interface("packet", ev.Packet).
			Msg("packet matched")
		return nil
	}
}
